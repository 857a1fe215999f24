package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/botrelay/internal/logging"
	"github.com/JakeFAU/botrelay/internal/relay"
)

type errorResponse struct {
	Error          string     `json:"error"`
	Kind           relay.Kind `json:"kind"`
	UpstreamStatus int        `json:"upstreamStatus,omitempty"`
}

// statusFor maps an error kind onto the HTTP status returned to callers.
func statusFor(kind relay.Kind) int {
	switch kind {
	case relay.KindValidation:
		return http.StatusBadRequest
	case relay.KindNotFound:
		return http.StatusNotFound
	case relay.KindRetryExhausted, relay.KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err with the request-scoped logger and writes the public part of
// it. Wrapped causes stay in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: "Internal server error.", Kind: relay.KindInternal}
	var re *relay.Error
	if errors.As(err, &re) {
		resp.Kind = re.Kind
		resp.UpstreamStatus = re.UpstreamStatus
		if re.Kind != relay.KindInternal {
			resp.Error = re.Message
		}
	}
	status := statusFor(resp.Kind)

	logger := logging.FromContext(r.Context(), s.logger)
	fields := []zap.Field{
		zap.String("kind", string(resp.Kind)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Info("request rejected", fields...)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
