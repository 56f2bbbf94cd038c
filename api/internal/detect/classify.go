package detect

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ai-detector/api/internal/detect/types"
)

var rateLimitReasons = map[string]bool{
	"RESOURCE_EXHAUSTED":  true,
	"RATE_LIMIT_EXCEEDED": true,
	"RATELIMITEXCEEDED":   true,
	"INSUFFICIENT_QUOTA":  true,
}

var authReasons = map[string]bool{
	"API_KEY_INVALID":         true,
	"API_KEY_SERVICE_BLOCKED": true,
	"INVALID_API_KEY":         true,
	"UNAUTHENTICATED":         true,
	"PERMISSION_DENIED":       true,
}

// Classify maps an engine failure onto the taxonomy. It is the only place
// where transport errors are interpreted.
func Classify(err error) *types.Error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return te
	}

	var tr *types.TransportError
	if errors.As(err, &tr) {
		reason := strings.ToUpper(strings.TrimSpace(tr.Reason))
		switch {
		case tr.Status == http.StatusTooManyRequests || rateLimitReasons[reason]:
			return types.NewError(types.KindRateLimit, "", err)
		case tr.Status == http.StatusUnauthorized || tr.Status == http.StatusForbidden || authReasons[reason]:
			return types.NewError(types.KindAuth, "", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.KindServiceUnavailable, "deadline exceeded", err)
	}
	return types.NewError(types.KindServiceUnavailable, "", err)
}
