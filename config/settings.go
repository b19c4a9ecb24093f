// Package config loads run settings and per-provider UI configurations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MailboxSettings configures the IMAP passcode channel.
type MailboxSettings struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Folder        string `yaml:"folder"`
	PollTimeoutS  int    `yaml:"poll_timeout_s"`
	PollIntervalS int    `yaml:"poll_interval_s"`
}

func (m MailboxSettings) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// Settings is the run configuration for the automation engine. Values come
// from an optional YAML file with environment variables taking precedence.
type Settings struct {
	Headless           bool   `yaml:"headless"`
	SlowMoMS           int    `yaml:"slow_mo_ms"`
	ProfileDir         string `yaml:"profile_dir"`
	ProvidersDir       string `yaml:"providers_dir"`
	DiagDir            string `yaml:"diag_dir"`
	SaveRawDiagnostics bool   `yaml:"save_raw_diagnostics"`
	UseOCR             bool   `yaml:"use_ocr"`

	RunTimeoutMS    int `yaml:"run_timeout_ms"`
	StepTimeoutMS   int `yaml:"step_timeout_ms"`
	SSOWaitMS       int `yaml:"sso_wait_ms"`
	PostLoginWaitMS int `yaml:"post_login_wait_ms"`
	LoginRetries    int `yaml:"login_retries"`

	Mailbox MailboxSettings `yaml:"mailbox"`

	// Optional Redis address for the shared selector-stats store. Empty
	// means the file store at SelectorStatsPath is used.
	RedisAddr         string `yaml:"redis_addr"`
	SelectorStatsPath string `yaml:"selector_stats_path"`

	// Optional NATS sink for step events.
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	// Fallback adapter endpoints, keyed by provider name.
	AdapterURLs map[string]string `yaml:"adapter_urls"`
}

// DefaultSettings mirrors the defaults the agent has always shipped with.
func DefaultSettings() Settings {
	return Settings{
		Headless:        true,
		ProvidersDir:    "providers",
		DiagDir:         "./ui_agent_diag",
		RunTimeoutMS:    45000,
		StepTimeoutMS:   8000,
		SSOWaitMS:       60000,
		PostLoginWaitMS: 20000,
		LoginRetries:    2,
		Mailbox: MailboxSettings{
			Host:          "imap.gmail.com",
			Port:          993,
			Folder:        "INBOX",
			PollTimeoutS:  30,
			PollIntervalS: 3,
		},
		SelectorStatsPath: "./ui_agent_diag/selector_stats.json",
		NATSSubject:       "ticketpilot.events.steps",
	}
}

// LoadSettings reads the YAML file at path (optional) and applies
// environment overrides on top of the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read settings %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	s.applyEnv()
	return s, nil
}

func (s *Settings) applyEnv() {
	envBool(&s.Headless, "PLAYWRIGHT_HEADLESS")
	envInt(&s.SlowMoMS, "PLAYWRIGHT_SLOW_MO")
	envString(&s.ProfileDir, "PLAYWRIGHT_USER_DATA_DIR")
	envString(&s.ProvidersDir, "UI_AGENT_PROVIDERS_DIR")
	envString(&s.DiagDir, "UI_AGENT_DIAG_DIR")
	envBool(&s.SaveRawDiagnostics, "UI_AGENT_SAVE_RAW_DIAGNOSTICS")
	envBool(&s.UseOCR, "UI_AGENT_USE_OCR")
	envInt(&s.RunTimeoutMS, "UI_AGENT_TIMEOUT_MS")
	envInt(&s.StepTimeoutMS, "UI_AGENT_SHORT_TIMEOUT_MS")
	envInt(&s.SSOWaitMS, "UI_AGENT_SSO_MANUAL_WAIT_MS")
	envInt(&s.PostLoginWaitMS, "UI_AGENT_POST_PASSCODE_WAIT_MS")
	envInt(&s.LoginRetries, "UI_AGENT_LOGIN_RETRIES")
	envString(&s.Mailbox.Host, "EMAIL_IMAP_HOST")
	envInt(&s.Mailbox.Port, "EMAIL_IMAP_PORT")
	envString(&s.Mailbox.User, "EMAIL_IMAP_USER")
	envString(&s.Mailbox.Password, "EMAIL_IMAP_PASSWORD")
	envString(&s.Mailbox.Folder, "EMAIL_IMAP_FOLDER")
	envInt(&s.Mailbox.PollTimeoutS, "EMAIL_IMAP_POLL_TIMEOUT_S")
	envInt(&s.Mailbox.PollIntervalS, "EMAIL_IMAP_POLL_INTERVAL_S")
	envString(&s.RedisAddr, "REDIS_ADDR")
	envString(&s.SelectorStatsPath, "UI_AGENT_SELECTOR_STATS_PATH")
	envString(&s.NATSURL, "NATS_URL")
	envString(&s.NATSSubject, "NATS_STEP_SUBJECT")
}

// CredentialsFor returns per-provider login credentials from the
// environment, e.g. ZENDESK_EMAIL / ZENDESK_PASSWORD.
func CredentialsFor(provider string) (email, password string) {
	key := strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
	email = os.Getenv(key + "_EMAIL")
	password = os.Getenv(key + "_PASSWORD")
	if password == "" {
		password = os.Getenv(key + "_API_TOKEN")
	}
	return email, password
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	}
}
