// Package fallback produces the default conversational reply when user
// input matches no ritual trigger.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperengineering/companion/internal/types"
	"github.com/hyperengineering/companion/internal/webhook"
)

// ErrNoResponder indicates neither a webhook nor a model is configured.
var ErrNoResponder = errors.New("no fallback responder configured")

// Responder turns free text plus recent context into a reply.
type Responder interface {
	Respond(ctx context.Context, req types.FallbackRequest) (string, error)
}

// WebhookResponder forwards the conversation to a user-configured endpoint
// and relays its reply.
type WebhookResponder struct {
	client *webhook.Client
	url    string
}

// NewWebhookResponder creates a responder posting to the given URL.
func NewWebhookResponder(client *webhook.Client, url string) *WebhookResponder {
	return &WebhookResponder{client: client, url: url}
}

// Respond posts {text, lastMessages, tone} and decodes {ok, text, error}.
func (w *WebhookResponder) Respond(ctx context.Context, req types.FallbackRequest) (string, error) {
	payload := map[string]any{
		"text":         req.Text,
		"lastMessages": req.LastMessages,
		"tone":         req.Tone,
	}
	body, err := w.client.Post(ctx, w.url, payload)
	if err != nil {
		return "", err
	}

	var reply struct {
		OK    *bool  `json:"ok"`
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	// Endpoints returning plain text instead of JSON are accepted as-is.
	if err := json.Unmarshal(body, &reply); err != nil {
		return string(body), nil
	}
	if reply.OK != nil && !*reply.OK {
		if reply.Error != "" {
			return "", fmt.Errorf("fallback webhook: %s", reply.Error)
		}
		return "", errors.New("fallback webhook rejected the request")
	}
	if reply.Text == "" {
		return "(no text)", nil
	}
	return reply.Text, nil
}

// StoredURLFunc supplies the configured fallback webhook URL. It is
// consulted per request so settings changes apply without a restart.
type StoredURLFunc func(ctx context.Context) string

// NewFunc binds responder selection and dispatch into a single callable:
// the request's URL override wins, then the stored webhook, then the model.
func NewFunc(stored StoredURLFunc, c *webhook.Client, model Responder) func(context.Context, types.FallbackRequest) (string, error) {
	return func(ctx context.Context, req types.FallbackRequest) (string, error) {
		var url string
		if stored != nil {
			url = stored(ctx)
		}
		r, err := Select(req, url, c, model)
		if err != nil {
			return "", err
		}
		return r.Respond(ctx, req)
	}
}

// Select picks the responder for one request: an explicit URL override wins,
// then the stored fallback webhook, then the model responder when available.
func Select(req types.FallbackRequest, stored string, c *webhook.Client, model Responder) (Responder, error) {
	url := req.URL
	if url == "" {
		url = stored
	}
	if url != "" {
		return NewWebhookResponder(c, url), nil
	}
	if model != nil {
		return model, nil
	}
	return nil, ErrNoResponder
}
