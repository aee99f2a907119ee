package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const OperatorKey contextKey = "operator"

// Operator identifies who called the API. Only a single shared token exists today.
type Operator struct {
	Name string
}

func GetOperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(OperatorKey).(*Operator)
	return op, ok
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, OperatorKey, op)
}

// RequireToken accepts "Authorization: Bearer <token>". An empty token leaves the API open
// and marks every caller as the local operator.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), &Operator{Name: "local"})))
				return
			}
			header := r.Header.Get("Authorization")
			given, found := strings.CutPrefix(header, "Bearer ")
			if !found || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), &Operator{Name: "api"})))
		})
	}
}
