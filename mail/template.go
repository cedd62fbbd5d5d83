// mail/template.go
package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"
)

// Template is a named subject, text body and HTML body, each in Go template
// syntax. Subject and text use text/template; HTML uses html/template.
type Template struct {
	Name     string
	Subject  string
	TextBody string
	HTMLBody string
}

// TemplateStore holds compiled templates by name. It is safe for concurrent use.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*compiledTemplate
}

type compiledTemplate struct {
	subject  *texttemplate.Template
	textBody *texttemplate.Template
	htmlBody *htmltemplate.Template
}

// funcs are available in every template.
var funcs = map[string]any{
	// oneline collapses all whitespace runs to single spaces, for headers.
	"oneline": func(s string) string { return strings.Join(strings.Fields(s), " ") },
}

// NewTemplateStore returns an empty store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[string]*compiledTemplate)}
}

// Register compiles tpl and stores it, replacing any template of the same name.
func (s *TemplateStore) Register(tpl Template) error {
	if tpl.Name == "" {
		return fmt.Errorf("mail: template name is required")
	}
	compiled := &compiledTemplate{}
	var err error

	if tpl.Subject != "" {
		if compiled.subject, err = texttemplate.New(tpl.Name + "_subject").Funcs(funcs).Parse(tpl.Subject); err != nil {
			return fmt.Errorf("mail: parse subject template %s: %w", tpl.Name, err)
		}
	}
	if tpl.TextBody != "" {
		if compiled.textBody, err = texttemplate.New(tpl.Name + "_text").Funcs(funcs).Parse(tpl.TextBody); err != nil {
			return fmt.Errorf("mail: parse text template %s: %w", tpl.Name, err)
		}
	}
	if tpl.HTMLBody != "" {
		if compiled.htmlBody, err = htmltemplate.New(tpl.Name + "_html").Funcs(funcs).Parse(tpl.HTMLBody); err != nil {
			return fmt.Errorf("mail: parse HTML template %s: %w", tpl.Name, err)
		}
	}

	s.mu.Lock()
	s.templates[tpl.Name] = compiled
	s.mu.Unlock()
	return nil
}

// Has reports whether a template is registered.
func (s *TemplateStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.templates[name]
	return ok
}

// Render executes the named template with data and returns a Message with
// Subject, TextBody and HTMLBody filled in. Recipients are left to the caller.
func (s *TemplateStore) Render(name string, data any) (Message, error) {
	s.mu.RLock()
	tpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("mail: template %s not found", name)
	}

	var msg Message
	var buf bytes.Buffer
	if tpl.subject != nil {
		if err := tpl.subject.Execute(&buf, data); err != nil {
			return Message{}, fmt.Errorf("mail: render subject: %w", err)
		}
		msg.Subject = buf.String()
	}
	if tpl.textBody != nil {
		buf.Reset()
		if err := tpl.textBody.Execute(&buf, data); err != nil {
			return Message{}, fmt.Errorf("mail: render text body: %w", err)
		}
		msg.TextBody = buf.String()
	}
	if tpl.htmlBody != nil {
		buf.Reset()
		if err := tpl.htmlBody.Execute(&buf, data); err != nil {
			return Message{}, fmt.Errorf("mail: render HTML body: %w", err)
		}
		msg.HTMLBody = buf.String()
	}
	return msg, nil
}
