package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

const (
	TemplateInitialVerification = "initial-verification"
	TemplateResendVerification  = "resend-verification"
	TemplateWelcome             = "welcome"
	TemplatePasswordReset       = "password-reset"
	TemplatePasswordChanged     = "password-changed"
)

//go:embed templates/*.html
var templateFS embed.FS

// Mailer renders a named template and hands the HTML to a Sender.
type Mailer struct {
	sender    Sender
	templates *template.Template
}

func NewMailer(sender Sender) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Mailer{sender: sender, templates: tmpl}, nil
}

// Send renders templateID with data and sends it. Render and delivery
// failures are both returned to the caller.
func (m *Mailer) Send(ctx context.Context, to, subject, templateID string, data map[string]any) error {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, templateID+".html", data); err != nil {
		return fmt.Errorf("render %s: %w", templateID, err)
	}
	return m.sender.Send(ctx, to, subject, buf.String())
}
