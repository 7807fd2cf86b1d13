package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Gauge {{.Event}}]
Card: {{.Card}}
Gauge: {{.Gauge}}
Value: {{.Formatted}}{{if .Unit}} {{.Unit}}{{end}}
Band: {{.Previous}} -> {{.Current}}
Window: {{.Window}}
Time: {{.At.UTC.Format "2006-01-02T15:04:05Z07:00"}}`

// Template renders the human readable message of an alert.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses an alert template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("gauge-alert").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to an alert.
func (t *Template) Render(alert Alert) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("gauge template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, alert); err != nil {
		return "", err
	}
	return buf.String(), nil
}
