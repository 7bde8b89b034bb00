package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"campwatch.dev/worker/availability"
)

// SlackNotifier sends notifications via Slack webhook
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier() *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		Client:     http.DefaultClient,
	}
}

func (s *SlackNotifier) Channel() string {
	return "slack"
}

func (s *SlackNotifier) Send(ctx context.Context, n *Notification) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL not set")
	}

	priority := Stays(n.Report, availability.Priority)
	regular := Stays(n.Report, availability.Regular)
	if len(priority)+len(regular) == 0 {
		return nil
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  fmt.Sprintf("🏕 %s: %d stay(s) available", n.FacilityName, len(priority)+len(regular)),
				"emoji": true,
			},
		},
		{
			"type": "divider",
		},
	}

	for _, stays := range []struct {
		title string
		list  []Stay
	}{
		{"*Weekend stays*", priority},
		{"*Other stays*", regular},
	} {
		if len(stays.list) == 0 {
			continue
		}
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": stays.title},
		})
		for _, st := range stays.list {
			blocks = append(blocks, map[string]interface{}{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Facility:*\n%s", st.Facility)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Dates:*\n%s", st.Range)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Free:*\n%s", siteCount(st.Available))},
				},
			})
		}
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []map[string]string{
			{"type": "mrkdwn", "text": "Book soon, sites go fast."},
		},
	})

	payload := map[string]interface{}{
		"text":   subject(n),
		"blocks": blocks,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook error: %d", resp.StatusCode)
	}
	return nil
}
