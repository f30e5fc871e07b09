package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template tags identify which flow produced a message.
const (
	TagActivation    = "activation"
	TagPasswordReset = "password_reset"
)

// TemplateData is the view model shared by the account emails.
type TemplateData struct {
	Name      string
	Link      string
	ExpiresIn string
}

var templates = template.Must(template.New("mail").Parse(`
{{define "activation"}}<!doctype html>
<html><body>
<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Thanks for signing up. Confirm your email address to start listing and saving cars:</p>
<p><a href="{{.Link}}">Activate my account</a></p>
<p>The link is valid for {{.ExpiresIn}}. If you did not create an account you can ignore this message.</p>
</body></html>{{end}}
{{define "password_reset"}}<!doctype html>
<html><body>
<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>We received a request to reset your password. Choose a new one here:</p>
<p><a href="{{.Link}}">Reset my password</a></p>
<p>The link is valid for {{.ExpiresIn}}. If you did not ask for a reset, no action is needed.</p>
</body></html>{{end}}
`))

var subjects = map[string]string{
	TagActivation:    "Activate your account",
	TagPasswordReset: "Reset your password",
}

// Render builds a Message for tag addressed to recipient.
func Render(tag, recipient string, data TemplateData) (Message, error) {
	subject, ok := subjects[tag]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown template %q", tag)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tag, data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s: %w", tag, err)
	}

	return Message{
		To:       []string{recipient},
		Subject:  subject,
		HTMLBody: buf.String(),
		Tag:      tag,
		Link:     data.Link,
	}, nil
}
