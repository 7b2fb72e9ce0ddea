// Package email sends operational notices over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration. Leaving Host, Port or From empty disables
// sending entirely.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service sends mail through one configured SMTP relay.
type Service struct {
	config Config
	auth   smtp.Auth
}

// NewService builds the sender. Auth is only negotiated when a username is
// configured, so authless relays (local dev) work too.
func NewService(config Config) *Service {
	svc := &Service{config: config}
	if config.Username != "" {
		svc.auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return svc
}

// IsConfigured reports whether the relay settings are complete enough to
// attempt delivery.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) addr() string {
	return s.config.Host + ":" + s.config.Port
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
}

// SendHTMLEmail sends a multipart/alternative message with a plain-text
// fallback part.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	const boundary = "trellis-alt"

	var msg bytes.Buffer
	for _, header := range []string{
		"To: " + strings.Join(to, ", "),
		"From: " + s.fromHeader(),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="` + boundary + `"`,
	} {
		msg.WriteString(header)
		msg.WriteString("\r\n")
	}
	msg.WriteString("\r\n")

	writePart := func(contentType, body string) {
		msg.WriteString("--" + boundary + "\r\n")
		msg.WriteString("Content-Type: " + contentType + "\r\n\r\n")
		msg.WriteString(body)
		msg.WriteString("\r\n\r\n")
	}
	writePart("text/plain; charset=UTF-8", "Please view this email in an HTML-capable email client.")
	writePart("text/html; charset=UTF-8", htmlBody)
	msg.WriteString("--" + boundary + "--\r\n")

	return smtp.SendMail(s.addr(), s.auth, s.config.From, to, msg.Bytes())
}

// ApprovalData holds data for the approval notice template
type ApprovalData struct {
	AppName     string
	UserName    string
	ModuleTitle string
	ModuleURL   string
}

// SendApprovalNotice tells a module's author that their module left drafting
// and is now approved.
func (s *Service) SendApprovalNotice(to, userName, moduleTitle, moduleURL string) error {
	data := ApprovalData{
		AppName:     "Trellis",
		UserName:    userName,
		ModuleTitle: moduleTitle,
		ModuleURL:   moduleURL,
	}

	subject := fmt.Sprintf("Your module %q is approved", moduleTitle)
	html, err := renderTemplate(approvalEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render approval template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data any) (string, error) {
	var buf bytes.Buffer
	if err := template.Must(template.New("email").Parse(tmpl)).Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const approvalEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your {{.AppName}} module is approved</title>
    <style>
        body { font-family: 'Segoe UI', Roboto, Helvetica, sans-serif; line-height: 1.5; color: #2b2b2b; max-width: 620px; margin: 0 auto; padding: 24px; }
        .header { border-bottom: 2px solid #2e7d32; padding-bottom: 10px; margin-bottom: 24px; }
        .button { display: inline-block; padding: 12px 28px; background: #2e7d32; color: #fff; text-decoration: none; border-radius: 6px; margin: 18px 0; }
        .footer { margin-top: 32px; padding-top: 18px; border-top: 1px solid #e5e5e5; font-size: 12px; color: #777; }
        .link { word-break: break-all; color: #2e7d32; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Congratulations, {{.UserName}}!</h2>

    <p>Your module <strong>{{.ModuleTitle}}</strong> has been approved. Its learning
    targets are now locked and the module is visible to learners.</p>

    <p>
        <a href="{{.ModuleURL}}" class="button">View Module</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ModuleURL}}</p>

    <div class="footer">
        <p>You are receiving this email because you author modules on {{.AppName}}.</p>
    </div>
</body>
</html>`
