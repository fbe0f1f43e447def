package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Subject string
	Lines   []string
	SentAt  string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	htmlTmpl, err := htmltemplate.New("alert.html").ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body. Message text is escaped.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MessageToTemplateData converts a message to template data.
func MessageToTemplateData(msg Message, sentAt time.Time) *TemplateData {
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	return &TemplateData{
		Subject: msg.Subject,
		Lines:   strings.Split(body, "\n"),
		SentAt:  sentAt.UTC().Format("2006-01-02 15:04:05 MST"),
	}
}
