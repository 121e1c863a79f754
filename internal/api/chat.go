package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/chat-widget/internal/chat"
	"github.com/ashureev/chat-widget/internal/domain"
	"github.com/ashureev/chat-widget/internal/render"
	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
)

var errRateLimited = fmt.Errorf("too many messages, slow down: %w", errdefs.ErrResourceExhausted)

// ChatHandler exposes the device's chat controller.
type ChatHandler struct {
	*Handler
	limiter *SendLimiter
}

// NewChatHandler creates a chat handler. A nil limiter disables rate limiting.
func NewChatHandler(base *Handler, limiter *SendLimiter) *ChatHandler {
	return &ChatHandler{Handler: base, limiter: limiter}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/", h.GetChat)
		r.Post("/open", h.Open)
		r.Post("/close", h.Close)
		r.Post("/signin", h.SignIn)
		r.Post("/messages", h.SendMessage)
		r.Put("/input", h.SetInput)
		r.Post("/satisfaction", h.Rate)
	})
	r.Post("/api/prototypes", h.RegisterPrototype)
	r.Get("/prototype/{id}", h.OpenPrototype)
}

// exchangeView is an exchange with its answer split into display segments.
type exchangeView struct {
	domain.Exchange
	Status   bool             `json:"status"`
	Segments []render.Segment `json:"segments,omitempty"`
}

type chatView struct {
	chat.Snapshot
	Exchanges []exchangeView `json:"exchanges"`
}

func newChatView(snap chat.Snapshot) chatView {
	views := make([]exchangeView, len(snap.Exchanges))
	for i, ex := range snap.Exchanges {
		views[i] = exchangeView{Exchange: ex, Status: ex.IsStatus(), Segments: render.Linkify(ex.Answer)}
	}
	return chatView{Snapshot: snap, Exchanges: views}
}

type messageRequest struct {
	Message string `json:"message"`
}

type signInRequest struct {
	Credential string `json:"credential"`
}

type rateRequest struct {
	Score int `json:"score"`
}

// GetChat returns the device's chat snapshot.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, newChatView(ctrl.Snapshot()))
}

// Open shows the widget and resumes the stored profile.
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctrl, deviceID, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := ctrl.Open(r.Context()); err != nil {
		slog.Warn("Chat resume failed", "device_id", deviceID, "error", err)
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, newChatView(ctrl.Snapshot()))
}

// Close hides the widget and cancels its pending work.
func (h *ChatHandler) Close(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctrl.Close()
	JSON(w, http.StatusOK, newChatView(ctrl.Snapshot()))
}

// SignIn exchanges an identity-provider credential for a chat session.
func (h *ChatHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctrl, deviceID, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ctrl.SignIn(r.Context(), req.Credential); err != nil {
		slog.Warn("Chat sign-in failed", "device_id", deviceID, "error", err)
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, newChatView(ctrl.Snapshot()))
}

// SendMessage submits a message and responds once its answer is revealed.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctrl, deviceID, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	// Blank messages never reach the controller, so they spend no tokens.
	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, chat.ErrEmptyMessage)
		return
	}
	if !h.limiter.Allow(deviceID) {
		WriteError(w, errRateLimited)
		return
	}

	// A client that disconnects mid-send must not abort the exchange; only
	// closing the widget does.
	if err := ctrl.Send(context.WithoutCancel(r.Context()), req.Message); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, newChatView(ctrl.Snapshot()))
}

// SetInput replaces the draft input text.
func (h *ChatHandler) SetInput(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	ctrl.SetInput(req.Message)
	w.WriteHeader(http.StatusNoContent)
}

// Rate records the satisfaction score for the visible prompt.
func (h *ChatHandler) Rate(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req rateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ctrl.Rate(r.Context(), req.Score); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, newChatView(ctrl.Snapshot()))
}

type registerPrototypeRequest struct {
	ChatID     string `json:"chat_id"`
	Email      string `json:"email"`
	PreviewURL string `json:"preview_url"`
}

// RegisterPrototype records a prototype produced by the generation service so
// the chat can resolve it to a durable link.
func (h *ChatHandler) RegisterPrototype(w http.ResponseWriter, r *http.Request) {
	var req registerPrototypeRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.PreviewURL) == "" || strings.TrimSpace(req.Email) == "" {
		Error(w, http.StatusBadRequest, "email and preview_url are required")
		return
	}

	p := &domain.Prototype{ChatID: req.ChatID, Email: req.Email, PreviewURL: req.PreviewURL}
	if err := h.repo.CreatePrototype(r.Context(), p); err != nil {
		WriteError(w, err)
		return
	}
	slog.Info("Prototype registered", "prototype_id", p.ID, "chat_id", p.ChatID)
	JSON(w, http.StatusCreated, p)
}

// OpenPrototype redirects a durable prototype link to its preview.
func (h *ChatHandler) OpenPrototype(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.repo.GetPrototype(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if p == nil || p.PreviewURL == "" {
		Error(w, http.StatusNotFound, "prototype not found")
		return
	}
	http.Redirect(w, r, p.PreviewURL, http.StatusFound)
}
