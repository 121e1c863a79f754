// Package agent talks to the conversational-AI and prototype-generation
// endpoints and records conversation transcripts.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	replyPath     = "/api/openai"
	prototypePath = "/api/v0"

	// maxResponseBodySize caps how much of an endpoint response is read (1MB).
	maxResponseBodySize = 1 << 20
)

var (
	errMissingReply   = errors.New("endpoint response has no reply field")
	errUnexpectedHTTP = errors.New("unexpected endpoint status")
)

// ReplyRequest is the body sent to the conversational endpoint.
type ReplyRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversationId"`
}

// ReplyResponse is the conversational endpoint's answer. An empty reply is
// valid; only a missing or null field is an error.
type ReplyResponse struct {
	Reply *string `json:"reply"`
}

// PrototypeRequest is the body sent to the prototype endpoint.
type PrototypeRequest struct {
	Prompt string `json:"prompt"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// PrototypeResult is the prototype endpoint's answer.
type PrototypeResult struct {
	PreviewURL string `json:"preview_url"`
	ChatID     string `json:"chat_id"`
}

// ClientConfig holds endpoint locations for the Client.
type ClientConfig struct {
	// AssistantURL is the base URL serving /api/openai.
	AssistantURL string
	// PrototypeURL is the base URL serving /api/v0. Defaults to AssistantURL.
	PrototypeURL string
	// Timeout bounds each call. Zero means no client-side timeout.
	Timeout time.Duration
}

// Client calls both endpoints over HTTP with JSON bodies. Every call is
// attempted exactly once.
type Client struct {
	http         *http.Client
	assistantURL string
	prototypeURL string
}

// NewClient creates a new endpoint client.
func NewClient(cfg ClientConfig) *Client {
	prototypeURL := cfg.PrototypeURL
	if prototypeURL == "" {
		prototypeURL = cfg.AssistantURL
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		assistantURL: strings.TrimRight(cfg.AssistantURL, "/"),
		prototypeURL: strings.TrimRight(prototypeURL, "/"),
	}
}

// Reply sends prompt to the conversational endpoint and returns the raw reply,
// directives included.
func (c *Client) Reply(ctx context.Context, prompt, conversationID string) (string, error) {
	var resp ReplyResponse
	if err := c.post(ctx, c.assistantURL+replyPath, ReplyRequest{Prompt: prompt, ConversationID: conversationID}, &resp); err != nil {
		return "", fmt.Errorf("assistant reply: %w", err)
	}
	if resp.Reply == nil {
		return "", fmt.Errorf("assistant reply: %w", errMissingReply)
	}
	return *resp.Reply, nil
}

// GeneratePrototype asks the prototype endpoint to build req.Prompt.
func (c *Client) GeneratePrototype(ctx context.Context, req PrototypeRequest) (*PrototypeResult, error) {
	var resp PrototypeResult
	if err := c.post(ctx, c.prototypeURL+prototypePath, req, &resp); err != nil {
		return nil, fmt.Errorf("generate prototype: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: %s: %s", errUnexpectedHTTP, res.Status, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBodySize)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
