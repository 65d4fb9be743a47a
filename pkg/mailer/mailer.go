// Package mailer renders markdown email templates and hands finished
// messages to a Sender. Document, receipt and reminder emails are
// authored as markdown with YAML frontmatter; delivery goes through
// whichever channel the orchestrator picked.
package mailer

import (
	"bytes"
	texttemplate "text/template"
)

// RenderSubject executes a subject line that may itself be a template
// ("Invoice {{.Number}} overdue"). Frontmatter subjects go through it
// before the email is assembled.
func RenderSubject(subject string, data any) (string, error) {
	tmpl, err := texttemplate.New("subject").Parse(subject)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
