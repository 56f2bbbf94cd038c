package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"

	"ai-detector/api/internal/credential"
	"ai-detector/api/internal/detect"
	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/session"
)

type Handle struct {
	pool     *detect.Pool
	sessions *session.Manager
	// serverKey - ключ движка из конфига для /v1/analyze без X-API-Key; nil - только пользовательский.
	serverKey func(engine string) string

	MaxImageBytes int64
	Timeout       time.Duration
}

func New(pool *detect.Pool, sessions *session.Manager, serverKey func(string) string) *Handle {
	return &Handle{
		pool:          pool,
		sessions:      sessions,
		serverKey:     serverKey,
		MaxImageBytes: 20 << 20,
		Timeout:       90 * time.Second,
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, body := mapError(err)
	writeJSON(w, code, body)
}

// mapError переводит ошибку в HTTP-статус и тело ответа.
func mapError(err error) (int, errorBody) {
	var terr *types.Error
	switch {
	case errors.Is(err, session.ErrNoImage):
		return http.StatusConflict, errorBody{Error: err.Error(), Kind: "no_image"}
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, errorBody{Error: err.Error(), Kind: "superseded"}
	case errors.Is(err, detect.ErrUnknownEngine):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "unknown_engine"}
	case errors.Is(err, detect.ErrEngineNotConfigured):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "engine_not_configured"}
	case errors.Is(err, credential.ErrReadOnly):
		return http.StatusConflict, errorBody{Error: err.Error(), Kind: "read_only_credential"}
	case errors.Is(err, credential.ErrEmpty):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "empty_credential"}
	case errors.As(err, &terr):
		return statusForKind(terr.Kind), errorBody{Error: terr.Kind.Message(), Kind: terr.Kind.String()}
	default:
		return http.StatusInternalServerError, errorBody{Error: err.Error(), Kind: types.KindUnknown.String()}
	}
}

func statusForKind(k types.Kind) int {
	switch k {
	case types.KindRead, types.KindMalformedEncoding, types.KindUnsupportedType:
		return http.StatusBadRequest
	case types.KindAuth:
		return http.StatusUnauthorized
	case types.KindRateLimit:
		return http.StatusTooManyRequests
	case types.KindResponseFormat, types.KindSchemaViolation:
		return http.StatusBadGateway
	case types.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// withDeadline: X-Request-Timeout (сек) или ?timeoutSec=, иначе h.Timeout.
func (h *Handle) withDeadline(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := h.Timeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

func (h *Handle) logFailure(r *http.Request, err error) {
	code, body := mapError(err)
	entry := log.WithFields(log.Fields{"path": r.URL.Path, "status": code, "kind": body.Kind})
	if code >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
		return
	}
	if types.KindOf(err).Local() {
		entry.WithError(err).Debug("bad input")
		return
	}
	entry.Info("request rejected")
}
