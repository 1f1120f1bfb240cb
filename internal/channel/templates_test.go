package channel

import (
	"strings"
	"testing"
)

func TestTemplateKeyFallsBackToDefault(t *testing.T) {
	s := NewTemplateStore()

	if got := s.templateKey("email", "PROJECT_READY_REVIEW"); got != "email_project_ready_review" {
		t.Errorf("templateKey = %q", got)
	}
	if got := s.templateKey("email", "UNKNOWN_EVENT"); got != "email_default" {
		t.Errorf("templateKey = %q, want email_default", got)
	}
	if got := s.templateKey("whatsapp", "TASK_ASSIGNMENT"); got != "whatsapp_default" {
		t.Errorf("templateKey = %q, want whatsapp_default", got)
	}
}

func TestRegisterAndRender(t *testing.T) {
	s := NewTemplateStore()
	if err := s.Register("email_custom", "Hi {{.Name}}"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := s.Render("email_custom", map[string]any{"Name": "Ada"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Hi Ada" {
		t.Errorf("out = %q", out)
	}
}

func TestRegisterInvalidTemplate(t *testing.T) {
	s := NewTemplateStore()
	if err := s.Register("bad", "{{.Name"); err == nil {
		t.Error("expected parse error")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	s := NewTemplateStore()
	if _, err := s.Render("nope", nil); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}
