package email

import (
	"strings"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	full := Config{Host: "smtp.example.com", Port: "587", From: "noreply@trellis.dev"}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"fully configured", func(*Config) {}, true},
		{"missing host", func(c *Config) { c.Host = "" }, false},
		{"missing port", func(c *Config) { c.Port = "" }, false},
		{"missing from", func(c *Config) { c.From = "" }, false},
		{"empty", func(c *Config) { *c = Config{} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			if got := NewService(cfg).IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendHTMLEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "subject", "<p>body</p>"); err == nil {
		t.Error("expected error when sending without configuration")
	}
}

func TestRenderApprovalTemplate(t *testing.T) {
	data := ApprovalData{
		AppName:     "Trellis",
		UserName:    "Avery",
		ModuleTitle: "Intro to X",
		ModuleURL:   "https://example.com/modules/h1",
	}

	html, err := renderTemplate(approvalEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	for _, want := range []string{
		"Trellis",
		"Avery",
		"Intro to X",
		"https://example.com/modules/h1",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered template missing %q", want)
		}
	}
	if !strings.Contains(html, "locked") {
		t.Error("template should mention that learning targets lock on approval")
	}
}
