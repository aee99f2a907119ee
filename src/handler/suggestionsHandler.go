package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tokenexecutor/src/guard"
	"tokenexecutor/src/model"
	"tokenexecutor/src/swap"
	"tokenexecutor/src/trade"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type buyer interface {
	AttemptBuy(ctx context.Context, sg trade.Suggestion) (*model.Position, error)
}

type SuggestionPayload struct {
	ID           string                 `json:"id"`
	TokenAddress string                 `json:"token_address"`
	TokenSymbol  string                 `json:"token_symbol"`
	Score        decimal.Decimal        `json:"score"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
}

// SubmitSuggestionHandler runs a pushed suggestion through the buy service.
// Rejections answer 409 with the rejection code; 201 carries the opened position.
func SubmitSuggestionHandler(b buyer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload SuggestionPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid suggestion payload")
			writeError(w, http.StatusBadRequest, "", "Invalid payload")
			return
		}
		payload.TokenAddress = strings.TrimSpace(payload.TokenAddress)
		if payload.TokenAddress == "" || strings.TrimSpace(payload.ID) == "" {
			writeError(w, http.StatusBadRequest, "", "id and token_address are required")
			return
		}

		pos, err := b.AttemptBuy(r.Context(), trade.Suggestion{
			ID:           strings.TrimSpace(payload.ID),
			TokenAddress: payload.TokenAddress,
			TokenSymbol:  strings.TrimSpace(payload.TokenSymbol),
			Score:        payload.Score,
			Metrics:      payload.Metrics,
		})
		if err != nil {
			if rej, ok := guard.AsRejection(err); ok {
				writeError(w, http.StatusConflict, string(rej.Code), rej.Error())
				return
			}
			// The swap may still land; the outcome is resolved on the next attempt.
			if errors.Is(err, swap.ErrUnconfirmed) || errors.Is(err, trade.ErrExecutionPending) {
				writeError(w, http.StatusAccepted, "", err.Error())
				return
			}
			logger.WithError(err).WithField("token", payload.TokenAddress).Error("suggestion buy failed")
			writeError(w, http.StatusBadGateway, "", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, pos)
	}
}
