package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// deliver sends ev to all configured targets. Errors are logged but do not
// affect the caller.
func (n *Notifier) deliver(ev Event) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, ev)
		case "teams":
			err = n.sendTeams(url, ev)
		case "http":
			err = n.sendHTTP(url, ev)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"alert", ev.Type,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"alert", ev.Type,
				"state", ev.State,
			)
		}
	}
}

func (n *Notifier) sendSlack(url string, ev Event) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s (%s)", severityLabel(ev), ev.Message, ev.State),
	})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url string, ev Event) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(ev),
		"summary":    ev.Type.String(),
		"title":      fmt.Sprintf("Conveyor alert: %s (%s)", ev.Type, ev.State),
		"text":       ev.Message,
	}
	body, _ := json.Marshal(payload)
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, ev Event) error {
	body, err := json.Marshal(map[string]interface{}{"alert": ev})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(ev Event) string {
	if ev.State == StateResolved {
		return "[RESOLVED]"
	}
	return "[" + ev.Severity.String() + "]"
}

func severityColor(ev Event) string {
	switch {
	case ev.State == StateResolved:
		return "2EB67D"
	case ev.Severity >= types.SeverityHigh:
		return "FF4F6A"
	default:
		return "FFAB40"
	}
}
