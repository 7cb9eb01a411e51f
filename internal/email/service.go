// Package email sends producer notifications over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service sends mail to a fixed list of producer recipients.
type Service struct {
	config Config
	to     []string
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config, to []string) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		to:     to,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != "" && len(s.to) > 0
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	// multipart.Writer picks a random boundary per message, so visitor text
	// cannot close the multipart early.
	var body bytes.Buffer
	parts := multipart.NewWriter(&body)
	for _, alt := range []struct{ contentType, content string }{
		{"text/plain; charset=UTF-8", textBody},
		{"text/html; charset=UTF-8", htmlBody},
	} {
		part, err := parts.CreatePart(textproto.MIMEHeader{"Content-Type": {alt.contentType}})
		if err != nil {
			return fmt.Errorf("create mime part: %w", err)
		}
		if _, err := io.WriteString(part, alt.content+"\r\n"); err != nil {
			return fmt.Errorf("write mime part: %w", err)
		}
	}
	if err := parts.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", parts.Boundary())
	fmt.Fprintf(&msg, "\r\n")
	msg.Write(body.Bytes())

	return s.send(s.server, s.auth, s.config.From, s.to, msg.Bytes())
}

// FeedbackData is what a feedback notification shows.
type FeedbackData struct {
	ProductName  string
	ShareLinkID  string
	FeedbackType string
	Comment      string
	ClientName   string
	ClientEmail  string
	PreviewURL   string
	SubmittedAt  time.Time
}

// SendFeedbackNotification tells the producers that a client left a verdict.
func (s *Service) SendFeedbackNotification(data FeedbackData) error {
	subject := fmt.Sprintf("[AR share] %s: %s", data.ProductName, data.FeedbackType)
	html, err := renderTemplate(feedbackEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render feedback template: %w", err)
	}
	return s.SendHTMLEmail(subject, feedbackText(data), html)
}

func feedbackText(data FeedbackData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) was marked %s.\r\n", data.ProductName, data.ShareLinkID, data.FeedbackType)
	if data.ClientName != "" || data.ClientEmail != "" {
		fmt.Fprintf(&b, "From: %s %s\r\n", data.ClientName, data.ClientEmail)
	}
	if data.Comment != "" {
		fmt.Fprintf(&b, "\r\n%s\r\n", data.Comment)
	}
	fmt.Fprintf(&b, "\r\nPreview: %s\r\n", data.PreviewURL)
	return b.String()
}

var feedbackEmailTemplate = template.Must(template.New("feedback").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.ProductName}}: {{.FeedbackType}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #374151; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #7c3aed; padding-bottom: 10px; margin-bottom: 20px; }
        .verdict { display: inline-block; padding: 4px 12px; border-radius: 9999px; background: #f3f4f6; font-weight: 600; }
        .comment { background: #f9fafb; padding: 12px; border-radius: 4px; margin: 20px 0; white-space: pre-wrap; }
        .button { display: inline-block; padding: 12px 24px; background: #7c3aed; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #6b7280; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.ProductName}}</h1>
    </div>

    <p>New client feedback on <strong>{{.ShareLinkID}}</strong>: <span class="verdict">{{.FeedbackType}}</span></p>
    {{if or .ClientName .ClientEmail}}<p>From {{.ClientName}} {{if .ClientEmail}}&lt;{{.ClientEmail}}&gt;{{end}}</p>{{end}}
    {{if .Comment}}<div class="comment">{{.Comment}}</div>{{end}}

    <p>
        <a href="{{.PreviewURL}}" class="button">Open Preview</a>
    </p>

    <div class="footer">
        <p>Submitted {{.SubmittedAt.UTC.Format "2006-01-02 15:04 MST"}}</p>
    </div>
</body>
</html>`))

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
