// Package api exposes the device-token registration endpoints. The
// fan-out pipeline only reads what these handlers write.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// minTokenChars mirrors the pipeline's filter: tokens this short would be
// silently discarded at dispatch time, so reject them at the door instead.
const minTokenChars = 10

type TokenAPI struct {
	Registry fanout.TokenRegistry
	Logger   *slog.Logger
}

func NewTokenAPI(registry fanout.TokenRegistry, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Registry: registry,
		Logger:   logger,
	}
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (api *TokenAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if len(req.Token) <= minTokenChars {
		response.WriteJSONError(w, http.StatusBadRequest, "token missing or too short")
		return
	}

	if err := api.Registry.RegisterToken(ctx, userID, req.Token); err != nil {
		api.Logger.Error("failed to register token", "user_id", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	// Log but don't fail hard; idempotency is preferred for unregister.
	if err := api.Registry.UnregisterToken(ctx, userID, req.Token); err != nil {
		api.Logger.Warn("failed to unregister token", "user_id", userID, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
