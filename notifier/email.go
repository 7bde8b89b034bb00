package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/smtp"
	"os"

	"campwatch.dev/worker/availability"
)

// EmailNotifier sends notifications via email
type EmailNotifier struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	FromName     string
}

// NewEmailNotifier creates a new email notifier from environment variables
func NewEmailNotifier() *EmailNotifier {
	return &EmailNotifier{
		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		FromAddress:  getEnv("SMTP_FROM", "noreply@campwatch.dev"),
		FromName:     getEnv("SMTP_FROM_NAME", "campwatch"),
	}
}

func (e *EmailNotifier) Channel() string {
	return "email"
}

func (e *EmailNotifier) Send(ctx context.Context, n *Notification) error {
	if e.SMTPUser == "" || e.SMTPPassword == "" {
		// Fall back to logging if SMTP not configured
		slog.Info("email not configured, logging notification",
			"to", n.Email,
			"subject", subject(n),
			"windows", len(Stays(n.Report, availability.Priority))+len(Stays(n.Report, availability.Regular)))
		return nil
	}

	body, err := renderEmail(n)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	msg := fmt.Sprintf("From: %s <%s>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n%s",
		e.FromName, e.FromAddress, n.Email, subject(n), body)

	auth := smtp.PlainAuth("", e.SMTPUser, e.SMTPPassword, e.SMTPHost)
	addr := fmt.Sprintf("%s:%s", e.SMTPHost, e.SMTPPort)

	return smtp.SendMail(addr, auth, e.FromAddress, []string{n.Email}, []byte(msg))
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #2F6B3A; color: white; padding: 20px; border-radius: 8px 8px 0 0;">
    <h1 style="margin: 0;">🏕 campwatch</h1>
  </div>
  <div style="border: 1px solid #e5e7eb; border-top: none; padding: 20px; border-radius: 0 0 8px 8px;">
    <p>Campsites opened up for your watch on <strong>{{.FacilityName}}</strong>.</p>
    {{if .Priority}}
    <h3>Weekend stays</h3>
    <ul>{{range .Priority}}<li><strong>{{.Range}}</strong> at {{.Facility}}: {{.Available}} site(s)</li>{{end}}</ul>
    {{end}}
    {{if .Regular}}
    <h3>Other stays</h3>
    <ul>{{range .Regular}}<li>{{.Range}} at {{.Facility}}: {{.Available}} site(s)</li>{{end}}</ul>
    {{end}}
    {{if .OffPeak}}<p style="color: #6b7280;">{{.OffPeak}} off-peak window(s) not shown.</p>{{end}}
    <p>Book soon, sites go fast.</p>
    <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
    <p style="color: #6b7280; font-size: 12px;">You are receiving this because you created a campwatch watch.</p>
  </div>
</body>
</html>`))

func renderEmail(n *Notification) (string, error) {
	data := struct {
		FacilityName string
		Priority     []Stay
		Regular      []Stay
		OffPeak      int
	}{
		FacilityName: n.FacilityName,
		Priority:     Stays(n.Report, availability.Priority),
		Regular:      Stays(n.Report, availability.Regular),
		OffPeak:      len(Stays(n.Report, availability.Ignored)),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// SendGridNotifier uses SendGrid API for email
type SendGridNotifier struct {
	APIKey      string
	FromAddress string
	FromName    string
	URL         string
	Client      *http.Client
}

// NewSendGridNotifier creates a SendGrid notifier
func NewSendGridNotifier() *SendGridNotifier {
	return &SendGridNotifier{
		APIKey:      os.Getenv("SENDGRID_API_KEY"),
		FromAddress: getEnv("SENDGRID_FROM", "noreply@campwatch.dev"),
		FromName:    getEnv("SENDGRID_FROM_NAME", "campwatch"),
		URL:         sendGridURL,
		Client:      http.DefaultClient,
	}
}

func (s *SendGridNotifier) Channel() string {
	return "email"
}

func (s *SendGridNotifier) Send(ctx context.Context, n *Notification) error {
	if s.APIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY not set")
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{
				"to": []map[string]string{
					{"email": n.Email},
				},
				"subject": subject(n),
			},
		},
		"from": map[string]string{
			"email": s.FromAddress,
			"name":  s.FromName,
		},
		"content": []map[string]string{
			{
				"type":  "text/plain",
				"value": FormatText(n),
			},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d", resp.StatusCode)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
