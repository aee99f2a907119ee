package handler

import (
	"context"
	"net/http"

	"tokenexecutor/src/auth"
	"tokenexecutor/src/model"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

type blacklistManager interface {
	ListBlacklist(ctx context.Context) ([]model.BlacklistEntry, error)
	ClearBlacklist(ctx context.Context, tokenAddress string) (bool, error)
}

func ListBlacklistHandler(g blacklistManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := g.ListBlacklist(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list blacklist")
			writeError(w, http.StatusInternalServerError, "", "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func ClearBlacklistHandler(g blacklistManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok := auth.GetOperatorFromContext(r.Context())
		if !ok || op == nil {
			writeError(w, http.StatusUnauthorized, "", "Unauthorized")
			return
		}
		token := chi.URLParam(r, "token")
		removed, err := g.ClearBlacklist(r.Context(), token)
		if err != nil {
			logger.WithError(err).WithField("token", token).Error("failed to clear blacklist entry")
			writeError(w, http.StatusInternalServerError, "", "Internal Server Error")
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "", "token is not blacklisted")
			return
		}
		logger.WithFields(logger.Fields{"token": token, "operator": op.Name}).Info("Blacklist entry cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}
