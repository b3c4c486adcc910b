package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xtruel/roma-map-revamp/internal/payments"
	"github.com/xtruel/roma-map-revamp/internal/platform/httpx"
	"github.com/xtruel/roma-map-revamp/internal/platform/requestctx"
	"github.com/xtruel/roma-map-revamp/internal/services"

	"go.uber.org/zap"
)

const maxRequestBody = 256 * 1024

// writeServiceError maps service errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, resource string) {
	var syncErr *services.SyncError
	switch {
	case errors.As(err, &syncErr):
		httpx.WriteError(ctx, w, httpx.NewError("sync_failed", syncErr.Message, http.StatusServiceUnavailable).
			WithDetails(map[string]any{"collection": syncErr.Collection, "op": string(syncErr.Op)}))
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_input", trimServicePrefix(err)))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound(fmt.Sprintf("%s not found", resource)))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("already_exists", fmt.Sprintf("%s already exists", resource), http.StatusConflict))
	case errors.Is(err, payments.ErrUnsupportedProvider):
		httpx.WriteError(ctx, w, httpx.BadRequest("unsupported_provider", "payment provider is not available"))
	case errors.Is(err, payments.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment session not found", http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("request failed", zap.String("resource", resource), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal", fmt.Sprintf("failed to process %s", resource), http.StatusInternalServerError))
	}
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, resource string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", resource+" service unavailable", http.StatusServiceUnavailable))
}

func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "request body is required"))
		return
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", strings.TrimPrefix(err.Error(), "httpx: ")))
}

// trimServicePrefix drops the package-level sentinel text so clients see the specific reason.
func trimServicePrefix(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, services.ErrInvalidInput.Error()+": "); i >= 0 {
		return msg[i+len(services.ErrInvalidInput.Error())+2:]
	}
	return msg
}
