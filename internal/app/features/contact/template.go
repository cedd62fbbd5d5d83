// internal/app/features/contact/template.go
package contact

import "github.com/dalemusser/portfolio/mail"

// Template renders a models.ContactSubmission. The subject keeps the name on
// one line so it cannot inject headers.
var Template = mail.Template{
	Name:    "contact",
	Subject: `New contact from {{oneline .Name}}`,
	TextBody: `You have a new message from your portfolio contact form.

Name: {{.Name}}
Email: {{.Email}}

Message:
{{.Message}}
`,
	HTMLBody: `<h2>New contact form submission</h2>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Message:</strong></p>
<p>{{.Message}}</p>
`,
}
