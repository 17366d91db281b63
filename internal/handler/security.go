package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/vendor-kart/internal/domain/auth"
)

// APIKeyHeader carries the caller's raw API key.
const APIKeyHeader = "api_key"

// authorize checks the request's API key against scope. The reason for a
// rejection is logged, never returned to the caller.
func (h *Handler) authorize(r *http.Request, scope string) error {
	info, err := h.keys.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
	if err != nil {
		zctx.From(r.Context()).Debug("API key rejected", zap.String("scope", scope), zap.Error(err))
		return auth.ErrUnauthorized
	}
	zctx.From(r.Context()).Debug("API key accepted", zap.String("key_id", info.ID), zap.String("key_name", info.Name))
	return nil
}
