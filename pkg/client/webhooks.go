package client

import (
	"context"
	"fmt"
	"net/http"
)

// ListWebhooks lists all webhooks registered for the credential.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var out []Webhook
	if err := c.do(ctx, http.MethodGet, "/user/webhooks", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWebhook registers a new delivery target for platform events.
func (c *Client) CreateWebhook(ctx context.Context, hook Webhook) (*Webhook, error) {
	if hook.RetryCount == 0 {
		hook.RetryCount = 3
	}
	if hook.TimeoutSec == 0 {
		hook.TimeoutSec = 10
	}
	var out Webhook
	if err := c.do(ctx, http.MethodPost, "/user/webhooks", nil, hook, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateWebhook updates webhook fields.
func (c *Client) UpdateWebhook(ctx context.Context, webhookID int, update map[string]any) (*Webhook, error) {
	var out Webhook
	if err := c.do(ctx, http.MethodPut, webhookPath(webhookID), nil, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWebhook removes a webhook.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID int) error {
	return c.do(ctx, http.MethodDelete, webhookPath(webhookID), nil, nil, nil)
}

// TestWebhook asks the backend to fire a test delivery.
func (c *Client) TestWebhook(ctx context.Context, webhookID int) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, webhookPath(webhookID)+"/test", nil, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWebhookHistory fetches the delivery history for a webhook.
func (c *Client) GetWebhookHistory(ctx context.Context, webhookID int) ([]WebhookDelivery, error) {
	var out []WebhookDelivery
	if err := c.do(ctx, http.MethodGet, webhookPath(webhookID)+"/history", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func webhookPath(id int) string {
	return fmt.Sprintf("/user/webhooks/%d", id)
}
