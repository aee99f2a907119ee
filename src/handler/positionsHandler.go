package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tokenexecutor/src/auth"
	"tokenexecutor/src/model"
	"tokenexecutor/src/repository"
	"tokenexecutor/src/trade"

	logger "github.com/sirupsen/logrus"
)

type positionSearcher interface {
	List(ctx context.Context, opts repository.PositionSearchOptions) ([]model.Position, error)
}

type sampleLister interface {
	ListByPosition(ctx context.Context, positionID uint, limit int) ([]model.PriceSample, error)
}

type seller interface {
	ExecuteSell(ctx context.Context, positionID uint, reason model.SellReason) (*model.Position, error)
}

// ListPositionsHandler lists positions, newest first. Filters: status, token, page, pageSize.
func ListPositionsHandler(repo positionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status model.PositionStatus
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			status = model.PositionStatus(strings.ToUpper(statusParam))
			switch status {
			case model.PositionStatusOpen, model.PositionStatusClosed, model.PositionStatusFailed:
			default:
				writeError(w, http.StatusBadRequest, "", "invalid status")
				return
			}
		}

		limit, offset, ok := pageParams(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "", "invalid page or pageSize")
			return
		}

		positions, err := repo.List(r.Context(), repository.PositionSearchOptions{
			Status:       status,
			TokenAddress: r.URL.Query().Get("token"),
			Limit:        limit,
			Offset:       offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			writeError(w, http.StatusInternalServerError, "", "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, positions)
	}
}

func PositionSamplesHandler(repo sampleLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "", "invalid position id")
			return
		}
		limit, _, ok := pageParams(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "", "invalid pageSize")
			return
		}
		samples, err := repo.ListByPosition(r.Context(), id, limit)
		if err != nil {
			logger.WithError(err).WithField("position_id", id).Error("failed to list price samples")
			writeError(w, http.StatusInternalServerError, "", "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, samples)
	}
}

// ClosePositionHandler sells an open position with reason MANUAL.
func ClosePositionHandler(s seller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok := auth.GetOperatorFromContext(r.Context())
		if !ok || op == nil {
			writeError(w, http.StatusUnauthorized, "", "Unauthorized")
			return
		}
		id, ok := idParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "", "invalid position id")
			return
		}

		pos, err := s.ExecuteSell(r.Context(), id, model.SellReasonManual)
		if err != nil {
			log := logger.WithFields(logger.Fields{"position_id": id, "operator": op.Name}).WithError(err)
			switch {
			case errors.Is(err, trade.ErrPositionNotFound):
				writeError(w, http.StatusNotFound, "", err.Error())
			case errors.Is(err, trade.ErrPositionNotOpen):
				writeError(w, http.StatusConflict, "", err.Error())
			case errors.Is(err, trade.ErrNothingHeld), errors.Is(err, trade.ErrExecutionPending):
				log.Warn("manual close not possible")
				writeError(w, http.StatusConflict, "", err.Error())
			default:
				log.Error("manual close failed")
				writeError(w, http.StatusBadGateway, "", err.Error())
			}
			return
		}
		logger.WithFields(logger.Fields{"position_id": id, "operator": op.Name}).Info("Position closed manually")
		writeJSON(w, http.StatusOK, pos)
	}
}
