package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeProvider(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0644); err != nil {
		t.Fatalf("write provider config: %v", err)
	}
}

func TestLoadProviders(t *testing.T) {
	dir := t.TempDir()
	writeProvider(t, dir, "acme", `{
		"base_url": "https://support.acme.test",
		"fields": {"subject": ["#subject", "input[name='subject']"]},
		"submit_selectors": ["button[type='submit']"]
	}`)

	configs, err := LoadProviders(dir)
	if err != nil {
		t.Fatalf("load providers: %v", err)
	}
	cfg, ok := configs["acme"]
	if !ok {
		t.Fatalf("acme not loaded: %v", configs)
	}
	if cfg.Name != "acme" {
		t.Fatalf("name not set from file stem: %q", cfg.Name)
	}
	if len(cfg.Fields["subject"]) != 2 {
		t.Fatalf("fields not parsed: %+v", cfg.Fields)
	}
}

func TestLoadProvidersRejectsEmptyCandidates(t *testing.T) {
	dir := t.TempDir()
	writeProvider(t, dir, "bad", `{
		"base_url": "https://x.test",
		"fields": {"subject": []}
	}`)

	_, err := LoadProviders(dir)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadProvidersRejectsMissingBaseURL(t *testing.T) {
	dir := t.TempDir()
	writeProvider(t, dir, "bad", `{"fields": {"subject": ["#s"]}}`)

	var cfgErr *ConfigError
	if _, err := LoadProviders(dir); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadProvidersRejectsBadPasscodeRegex(t *testing.T) {
	dir := t.TempDir()
	writeProvider(t, dir, "bad", `{
		"base_url": "https://x.test",
		"passcode": {"selectors": ["#otp"], "code_regex": "(unclosed"}
	}`)

	var cfgErr *ConfigError
	if _, err := LoadProviders(dir); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadProvidersEmptyDir(t *testing.T) {
	if _, err := LoadProviders(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without provider configs")
	}
}

func TestResolvedBaseURLExpandsEnv(t *testing.T) {
	t.Setenv("ACME_SUBDOMAIN", "support")
	cfg := &ProviderConfig{BaseURL: "https://{ACME_SUBDOMAIN}.acme.test"}
	if got := cfg.ResolvedBaseURL(); got != "https://support.acme.test" {
		t.Fatalf("expected expanded URL, got %q", got)
	}
}

func TestSettingsEnvOverrides(t *testing.T) {
	t.Setenv("UI_AGENT_TIMEOUT_MS", "90000")
	t.Setenv("PLAYWRIGHT_HEADLESS", "false")
	t.Setenv("EMAIL_IMAP_USER", "agent@example.test")

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.RunTimeoutMS != 90000 {
		t.Fatalf("timeout override not applied: %d", s.RunTimeoutMS)
	}
	if s.Headless {
		t.Fatal("headless override not applied")
	}
	if s.Mailbox.User != "agent@example.test" {
		t.Fatalf("mailbox user override not applied: %q", s.Mailbox.User)
	}
}

func TestSettingsYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("run_timeout_ms: 10000\nstep_timeout_ms: 2000\n"), 0644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	t.Setenv("UI_AGENT_TIMEOUT_MS", "20000")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.RunTimeoutMS != 20000 {
		t.Fatalf("env should win over yaml: %d", s.RunTimeoutMS)
	}
	if s.StepTimeoutMS != 2000 {
		t.Fatalf("yaml value lost: %d", s.StepTimeoutMS)
	}
}

func TestCredentialsFor(t *testing.T) {
	t.Setenv("ACME_DESK_EMAIL", "bot@example.test")
	t.Setenv("ACME_DESK_API_TOKEN", "tok-123")

	email, password := CredentialsFor("acme-desk")
	if email != "bot@example.test" {
		t.Fatalf("email: %q", email)
	}
	if password != "tok-123" {
		t.Fatalf("api token fallback not used: %q", password)
	}
}
