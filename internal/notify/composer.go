package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
)

// Page paths linked from emails, relative to the base URL.
const (
	LoginPath          = "/login"
	ForgotPasswordPath = "/forgot-password"
	ResetPasswordPath  = "/reset-password"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type templateData struct {
	AppName   string
	FirstName string
	Link      string
}

type kindTemplates struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Composer renders events into messages.
type Composer struct {
	appName   string
	baseURL   string
	templates map[Kind]kindTemplates
}

// NewComposer creates a composer. baseURL must not end with a slash.
func NewComposer(appName, baseURL string) *Composer {
	c := &Composer{
		appName:   appName,
		baseURL:   strings.TrimRight(baseURL, "/"),
		templates: make(map[Kind]kindTemplates),
	}
	c.add(KindWelcome, "Welcome to {{.AppName}}",
		"Hi {{.FirstName}},\n\nYour {{.AppName}} account is ready. You can sign in at {{.Link}}.\n",
		`<p>Hi {{.FirstName}},</p><p>Your {{.AppName}} account is ready. You can <a href="{{.Link}}">sign in here</a>.</p>`)
	c.add(KindLogin, "New sign-in to your {{.AppName}} account",
		"Hi {{.FirstName}},\n\nWe noticed a new sign-in to your {{.AppName}} account. If this wasn't you, reset your password at {{.Link}}.\n",
		`<p>Hi {{.FirstName}},</p><p>We noticed a new sign-in to your {{.AppName}} account. If this wasn't you, <a href="{{.Link}}">reset your password</a>.</p>`)
	c.add(KindPasswordReset, "Reset your {{.AppName}} password",
		"Hi {{.FirstName}},\n\nUse the link below to choose a new password. It expires in one hour and works once.\n\n{{.Link}}\n\nIf you didn't ask for this, you can ignore this email.\n",
		`<p>Hi {{.FirstName}},</p><p>Use the link below to choose a new password. It expires in one hour and works once.</p><p><a href="{{.Link}}">Reset password</a></p><p>If you didn't ask for this, you can ignore this email.</p>`)
	c.add(KindPasswordChanged, "Your {{.AppName}} password was changed",
		"Hi {{.FirstName}},\n\nYour password was just changed. If this wasn't you, reset it again at {{.Link}}.\n",
		`<p>Hi {{.FirstName}},</p><p>Your password was just changed. If this wasn't you, <a href="{{.Link}}">reset it again</a>.</p>`)
	return c
}

func (c *Composer) add(kind Kind, subject, text, html string) {
	c.templates[kind] = kindTemplates{
		subject: texttemplate.Must(texttemplate.New(string(kind) + ".subject").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(string(kind) + ".txt").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(string(kind) + ".html").Parse(html)),
	}
}

// ResetLink returns the password reset URL for token.
func (c *Composer) ResetLink(token string) string {
	return c.baseURL + ResetPasswordPath + "?token=" + url.QueryEscape(token)
}

func (c *Composer) link(event Event) string {
	switch event.Kind {
	case KindPasswordReset:
		return c.ResetLink(event.Token)
	case KindLogin, KindPasswordChanged:
		return c.baseURL + ForgotPasswordPath
	default:
		return c.baseURL + LoginPath
	}
}

// Compose renders the message for event.
func (c *Composer) Compose(event Event) (Message, error) {
	if err := event.Validate(); err != nil {
		return Message{}, err
	}
	tmpl, ok := c.templates[event.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for %s", event.Kind)
	}

	firstName := event.FirstName
	if firstName == "" {
		firstName = "there"
	}
	data := templateData{AppName: c.appName, FirstName: firstName, Link: c.link(event)}

	var subj, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subj, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	return Message{
		To:      event.Email,
		Subject: subj.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
