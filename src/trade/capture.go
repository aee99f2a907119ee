package trade

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"tokenexecutor/src/model"

	"github.com/sirupsen/logrus"
)

type ExceptionStore interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Capture logs err and persists it to the exceptions table when store is set.
func Capture(
	ctx context.Context,
	store ExceptionStore,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {
	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	logrus.WithFields(logrus.Fields{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("System exception captured")

	if store == nil {
		return
	}
	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now().UTC(),
	}
	// The caller's context may already be cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if e := store.Create(saveCtx, exc); e != nil {
		logrus.WithError(e).Error("Failed to persist exception")
	}
}
