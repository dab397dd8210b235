package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[string]string{
	KindConfirmationCode: "Your Lumen Bank confirmation code",
	KindWelcome:          "Welcome to Lumen Bank",
}

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier renders embedded HTML templates and relays them over SMTP.
type SMTPNotifier struct {
	cfg       SMTPConfig
	templates *template.Template
	sendMail  func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier parses the embedded templates and builds the notifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &SMTPNotifier{cfg: cfg, templates: tmpl, sendMail: smtp.SendMail}, nil
}

// Send renders message.Template and mails it to message.Destination.
func (n *SMTPNotifier) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := n.Render(message)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	subject, ok := subjects[message.Kind]
	if !ok {
		subject = "Notification from Lumen Bank"
	}
	mime := "MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n"
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n%s%s", n.cfg.From, message.Destination, subject, mime, body))
	return n.sendMail(addr, auth, n.cfg.From, []string{message.Destination}, msg)
}

// Render executes the named template with the message variables.
func (n *SMTPNotifier) Render(message Message) (string, error) {
	tmpl := n.templates.Lookup(message.Template + ".html")
	if tmpl == nil {
		return "", fmt.Errorf("unknown mail template %q", message.Template)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, message.Variables); err != nil {
		return "", fmt.Errorf("execute template %q: %w", message.Template, err)
	}
	return body.String(), nil
}
