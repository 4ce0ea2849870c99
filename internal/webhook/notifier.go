package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier posts events to the downstream automation webhook (n8n or
// similar). Delivery is best-effort: callers decide what a failure means,
// typically a local fallback.
type Notifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewNotifier(url string, timeout time.Duration, logger *zap.Logger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Configured reports whether a webhook URL was set at all.
func (n *Notifier) Configured() bool {
	return n.url != ""
}

// Notify posts one event. The data fields are duplicated at the payload root
// and inside a nested body object; downstream consumers built against either
// shape keep working. Non-2xx responses and transport errors both count as
// webhook-unreachable.
func (n *Notifier) Notify(event string, data map[string]interface{}) ([]byte, error) {
	if n.url == "" {
		return nil, fmt.Errorf("webhook: no url configured")
	}

	payload := map[string]interface{}{
		"event":     event,
		"data":      data,
		"timestamp": time.Now().Format(time.RFC3339),
		"source":    "channel-adapter",
	}
	body := map[string]interface{}{
		"event": event,
		"data":  data,
	}
	for k, v := range data {
		payload[k] = v
		body[k] = v
	}
	payload["body"] = body

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: marshal payload: %w", err)
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("webhook: post %s: %w", event, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webhook: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, fmt.Errorf("webhook: %s returned %s", event, resp.Status)
	}

	n.logger.Debug("webhook delivered", zap.String("event", event))
	return respBody, nil
}

// Reachable probes the webhook endpoint for the health check. Any HTTP
// response at all counts as reachable; only transport failures do not.
func (n *Notifier) Reachable() bool {
	if n.url == "" {
		return false
	}
	req, err := http.NewRequest(http.MethodHead, n.url, nil)
	if err != nil {
		return false
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
