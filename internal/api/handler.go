// Package api provides HTTP handlers for the chat widget API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/chat-widget/internal/chat"
	"github.com/ashureev/chat-widget/internal/identity"
	"github.com/ashureev/chat-widget/internal/store"
	"github.com/containerd/errdefs"
)

// maxRequestBodySize caps JSON request bodies (64KB).
const maxRequestBodySize = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	repo          store.Repository
	registry      *chat.Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, registry *chat.Registry, frontendURL string, isDev bool) *Handler {
	return &Handler{
		repo:          repo,
		registry:      registry,
		allowedOrigin: frontendURL,
		isDev:         isDev,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteError maps err to a status code by its error class and writes it.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		Error(w, status, http.StatusText(status))
		return
	}
	Error(w, status, err.Error())
}

// StatusFor returns the HTTP status matching err's error class.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsFailedPrecondition(err), errdefs.IsConflict(err):
		return http.StatusConflict
	case errdefs.IsResourceExhausted(err):
		return http.StatusTooManyRequests
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty: %w", errdefs.ErrInvalidArgument)
		}
		return fmt.Errorf("invalid JSON body: %w", errdefs.ErrInvalidArgument)
	}
	return nil
}

// session returns the calling device's controller.
func (h *Handler) session(r *http.Request) (*chat.Controller, string, bool) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return nil, "", false
	}
	return h.registry.Get(deviceID), deviceID, true
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
