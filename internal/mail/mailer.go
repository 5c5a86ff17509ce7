package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/router-for-me/adminpanel/internal/metrics"
	"golang.org/x/time/rate"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplateInvitation    = "invitation"
	TemplatePasswordReset = "password_reset"
	TemplateVerification  = "verification"
	TemplateWelcome       = "welcome"
)

// templateData is shared by every template.
type templateData struct {
	SiteName          string
	RecipientName     string
	InviterName       string
	TemporaryPassword string
	Link              string
	ExpiresIn         string
}

// Mailer renders account emails and hands them to a Dispatcher at a bounded rate.
type Mailer struct {
	dispatcher Dispatcher
	limiter    *rate.Limiter
	baseURL    string
	siteName   func() string
	templates  map[string]*template.Template
}

// NewMailer builds a mailer. siteName is read on every send so runtime setting changes apply.
func NewMailer(dispatcher Dispatcher, baseURL string, perSecond float64, siteName func() string) (*Mailer, error) {
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	m := &Mailer{
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		baseURL:    strings.TrimRight(baseURL, "/"),
		siteName:   siteName,
		templates:  make(map[string]*template.Template),
	}
	for _, name := range []string{TemplateInvitation, TemplatePasswordReset, TemplateVerification, TemplateWelcome} {
		tmpl, errParse := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if errParse != nil {
			return nil, fmt.Errorf("mail: parse %s template: %w", name, errParse)
		}
		m.templates[name] = tmpl
	}
	return m, nil
}

// InvitationEmail describes an invitation. Exactly one of TemporaryPassword or Token is set.
type InvitationEmail struct {
	To                string
	RecipientName     string
	InviterName       string
	TemporaryPassword string
	Token             string
}

// SendInvitation sends an invitation carrying a temporary password or an accept link.
func (m *Mailer) SendInvitation(ctx context.Context, in InvitationEmail) error {
	data := templateData{
		RecipientName:     in.RecipientName,
		InviterName:       in.InviterName,
		TemporaryPassword: in.TemporaryPassword,
		ExpiresIn:         "7 days",
	}
	if in.TemporaryPassword != "" {
		data.Link = m.link("/login", "")
	} else {
		data.Link = m.link("/auth/accept-invite", in.Token)
	}
	return m.send(ctx, TemplateInvitation, in.To, fmt.Sprintf("%s invited you to %s", in.InviterName, m.site()), data)
}

// SendPasswordReset sends a reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	data := templateData{RecipientName: name, Link: m.link("/auth/reset-password", token), ExpiresIn: "1 hour"}
	return m.send(ctx, TemplatePasswordReset, to, "Reset your password", data)
}

// SendVerification sends an email verification link.
func (m *Mailer) SendVerification(ctx context.Context, to, name, token string) error {
	data := templateData{RecipientName: name, Link: m.link("/auth/verify-email", token), ExpiresIn: "24 hours"}
	return m.send(ctx, TemplateVerification, to, "Verify your email address", data)
}

// SendWelcome confirms a verified address.
func (m *Mailer) SendWelcome(ctx context.Context, to, name string) error {
	data := templateData{RecipientName: name, Link: m.link("/login", "")}
	return m.send(ctx, TemplateWelcome, to, "Welcome to "+m.site(), data)
}

// render renders a template without sending it.
func (m *Mailer) render(name string, data templateData) (string, error) {
	tmpl, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("mail: unknown template %s", name)
	}
	if data.SiteName == "" {
		data.SiteName = m.site()
	}
	var buf bytes.Buffer
	if errExec := tmpl.ExecuteTemplate(&buf, "layout", data); errExec != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, errExec)
	}
	return buf.String(), nil
}

func (m *Mailer) send(ctx context.Context, name, to, subject string, data templateData) error {
	html, errRender := m.render(name, data)
	if errRender != nil {
		metrics.EmailsSent.WithLabelValues(name, "error").Inc()
		return errRender
	}
	if errWait := m.limiter.Wait(ctx); errWait != nil {
		metrics.EmailsSent.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("mail: throttle: %w", errWait)
	}
	if errSend := m.dispatcher.Send(ctx, Message{To: to, Subject: subject, HTML: html}); errSend != nil {
		metrics.EmailsSent.WithLabelValues(name, "error").Inc()
		return errSend
	}
	metrics.EmailsSent.WithLabelValues(name, "sent").Inc()
	return nil
}

func (m *Mailer) link(path, token string) string {
	if token == "" {
		return m.baseURL + path
	}
	return m.baseURL + path + "?token=" + url.QueryEscape(token)
}

func (m *Mailer) site() string {
	if m.siteName != nil {
		if name := strings.TrimSpace(m.siteName()); name != "" {
			return name
		}
	}
	return "Admin Panel"
}
