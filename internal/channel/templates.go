package channel

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// TemplateStore compiles and renders named message body templates. Senders
// render bodies here; the dispatch engine never sees rendered text.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewTemplateStore seeds the store with the default body templates.
func NewTemplateStore() *TemplateStore {
	store := &TemplateStore{
		templates: make(map[string]*template.Template),
	}
	// default templates
	_ = store.Register("email_project_ready_review",
		"Hello {{.Name}},\n\nyour project {{.ProjectTitle}} moved from {{.FromColumn}} to {{.ToColumn}} and is ready for review.\n\n{{.ProjectURL}}")
	_ = store.Register("email_task_assignment",
		"Hello {{.Name}},\n\na new task was assigned to you on {{.ProjectTitle}}.\n\n{{.ProjectURL}}")
	_ = store.Register("email_deadline_reminder",
		"Hello {{.Name}},\n\nthe deadline for {{.ProjectTitle}} is approaching.\n\n{{.ProjectURL}}")
	_ = store.Register("email_default",
		"Hello {{.Name}},\n\nthere is an update on {{.ProjectTitle}}.\n\n{{.ProjectURL}}")
	_ = store.Register("whatsapp_default",
		"Hi {{.Name}}! Update on {{.ProjectTitle}}: {{.ProjectURL}}")
	return store
}

// Register adds or replaces a template definition.
func (s *TemplateStore) Register(name, body string) error {
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = tmpl
	return nil
}

// Render executes the template with the provided data.
func (s *TemplateStore) Render(name string, data any) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return sb.String(), nil
}

// templateKey maps an event type to a registered template name, falling
// back to the channel default.
func (s *TemplateStore) templateKey(channel, eventType string) string {
	key := channel + "_" + strings.ToLower(eventType)
	s.mu.RLock()
	_, ok := s.templates[key]
	s.mu.RUnlock()
	if ok {
		return key
	}
	return channel + "_default"
}
