// internal/api/http/errors.go
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
	"github.com/mind-engage/mindengage-lti-tool/internal/lti"
)

// Error codes of the JSON error envelope.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeBadLtiRequest   = "BAD_LTI_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeIllegalState    = "ILLEGAL_STATE"
	CodeInternal        = "INTERNAL_ERROR"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
)

type apiError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Code: code, Message: msg})
}

// writeError maps err to a status code and error envelope.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		badLti     *lti.BadLtiRequestError
		authErr    *lti.AuthenticationError
		keyErr     *lti.KeyResolutionError
		stateErr   *lti.MalformedStateError
		notFound   *lti.NotFoundError
		external   *lti.ExternalServiceError
		illegal    *lti.IllegalStateError
		validation *deployment.ValidationError
	)
	switch {
	case errors.As(err, &badLti):
		writeErr(w, http.StatusBadRequest, CodeBadLtiRequest, badLti.Error())
	case errors.As(err, &validation):
		writeErr(w, http.StatusBadRequest, CodeBadRequest, validation.Error())
	case errors.As(err, &authErr):
		log.Debug("authentication failed", zap.Error(err))
		writeErr(w, http.StatusUnauthorized, CodeUnauthorized, headline("authentication failed", authErr.Msg))
	case errors.As(err, &keyErr):
		log.Debug("key resolution failed", zap.Error(err))
		writeErr(w, http.StatusUnauthorized, CodeUnauthorized, headline("key resolution failed", keyErr.Msg))
	case errors.As(err, &stateErr):
		writeErr(w, http.StatusUnauthorized, CodeUnauthorized, stateErr.Error())
	case errors.As(err, &notFound):
		writeErr(w, http.StatusNotFound, CodeNotFound, notFound.Error())
	case errors.Is(err, deployment.ErrAlreadyExists):
		writeErr(w, http.StatusConflict, CodeAlreadyExists, err.Error())
	case errors.As(err, &external):
		log.Warn("external service failure", zap.String("party", external.Party), zap.Error(err))
		writeErr(w, http.StatusBadGateway, CodeExternalService,
			headline(fmt.Sprintf("external service %q", external.Party), external.Msg))
	case errors.As(err, &illegal):
		log.Error("illegal state", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, CodeIllegalState, "illegal state")
	default:
		log.Error("unhandled error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// headline is the client-facing part of a wrapped error. Causes stay in the logs.
func headline(prefix, msg string) string {
	if msg == "" {
		return prefix
	}
	return prefix + ": " + msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, CodeBadRequest, "bad json")
		return false
	}
	return true
}
