package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const productName = "notesmith"

// Template names.
const (
	TemplateVerifyEmail = "verify_email"
	TemplateWelcome     = "welcome"
)

// VerifyEmailData fills TemplateVerifyEmail.
type VerifyEmailData struct {
	Name      string
	Link      string
	ExpiresIn string // e.g. "24 hours"
}

// WelcomeData fills TemplateWelcome.
type WelcomeData struct {
	Name string
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{template "title" .}}</title>
</head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
{{template "body" .}}
</body>
</html>{{end}}`

type message struct {
	subject string
	tmpl    *template.Template
}

var messages = map[string]message{
	TemplateVerifyEmail: {
		subject: "Verify your email - " + productName,
		tmpl: mustParse(`{{define "title"}}Verify your email{{end}}{{define "body"}}
    <h2 style="margin-top: 0;">Hi {{.Name}}, confirm your email address</h2>
    <p>Click the button below to verify your email. This link will expire in <strong>{{.ExpiresIn}}</strong>.</p>
    <p style="text-align: center; margin: 30px 0;">
        <a href="{{.Link}}" style="background: #2f6feb; color: white; padding: 14px 30px; text-decoration: none; border-radius: 6px; font-weight: 600; display: inline-block;">Verify Email</a>
    </p>
    <p style="color: #666; font-size: 14px;">If you didn't create an account, you can safely ignore this email.</p>
{{end}}`),
	},
	TemplateWelcome: {
		subject: "Welcome to " + productName + "!",
		tmpl: mustParse(`{{define "title"}}Welcome to ` + productName + `!{{end}}{{define "body"}}
    <h2 style="margin-top: 0;">Welcome, {{.Name}}!</h2>
    <p>Your email is verified. Write notes, search them, and let the assistant summarize, polish or tag them for you.</p>
{{end}}`),
	},
}

var fallback = mustParse(`{{define "title"}}Message from ` + productName + `{{end}}{{define "body"}}<p>{{.}}</p>{{end}}`)

func mustParse(src string) *template.Template {
	return template.Must(template.Must(template.New("layout").Parse(layout)).Parse(src))
}

// Render returns the subject and HTML body for a template. Unknown names,
// and data of the wrong type for a known name, fall back to a generic
// message that prints the data.
func Render(templateName string, data any) (subject, body string) {
	var buf bytes.Buffer
	if m, ok := messages[templateName]; ok {
		if err := m.tmpl.ExecuteTemplate(&buf, "layout", data); err == nil {
			return m.subject, buf.String()
		}
		buf.Reset()
	}
	if err := fallback.ExecuteTemplate(&buf, "layout", fmt.Sprintf("%+v", data)); err != nil {
		return "Message from " + productName, ""
	}
	return "Message from " + productName, buf.String()
}
