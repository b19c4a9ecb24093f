package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ConfigError reports a malformed or missing provider configuration. It is
// fatal: the engine aborts before touching a browser.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider config %q: %s", e.Provider, e.Reason)
}

// LoginConfig describes how to authenticate against a provider's login page.
type LoginConfig struct {
	EmailSelectors    []string `json:"email_selectors"`
	PasswordSelectors []string `json:"password_selectors"`
	ButtonSelectors   []string `json:"login_button_selectors"`
}

// PasscodeConfig describes the two-factor passcode prompt and where to find
// the emailed code.
type PasscodeConfig struct {
	Selectors       []string `json:"selectors"`
	SubmitSelectors []string `json:"submit_selectors"`
	InboxURL        string   `json:"inbox_url"`
	SubjectRegex    string   `json:"subject_regex"`
	CodeRegex       string   `json:"code_regex"`
}

// ProviderConfig is the declarative UI map for one provider. It is loaded
// once per run and shared read-only across concurrent runs.
type ProviderConfig struct {
	Name             string              `json:"-"`
	BaseURL          string              `json:"base_url"`
	Login            *LoginConfig        `json:"login,omitempty"`
	Fields           map[string][]string `json:"fields"`
	OpenNewSelectors []string            `json:"open_new_selectors"`
	SubmitSelectors  []string            `json:"submit_selectors"`
	SuccessSelectors []string            `json:"success_selectors"`
	Passcode         *PasscodeConfig     `json:"passcode,omitempty"`
	SSODomains       []string            `json:"sso_domains"`
	Adapter          string              `json:"adapter,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{([A-Z][A-Z0-9_]*)\}`)

// ResolvedBaseURL expands {ENV_VAR} placeholders in the base URL, e.g.
// https://{ZENDESK_SUBDOMAIN}.zendesk.com.
func (c *ProviderConfig) ResolvedBaseURL() string {
	return placeholderRe.ReplaceAllStringFunc(c.BaseURL, func(m string) string {
		key := strings.Trim(m, "{}")
		return os.Getenv(key)
	})
}

// Validate rejects configurations that would otherwise fail deep inside
// step execution.
func (c *ProviderConfig) Validate() error {
	if c.BaseURL == "" {
		return &ConfigError{Provider: c.Name, Reason: "missing base_url"}
	}
	for field, candidates := range c.Fields {
		if len(candidates) == 0 {
			return &ConfigError{Provider: c.Name, Reason: fmt.Sprintf("field %q has no selector candidates", field)}
		}
		for _, sel := range candidates {
			if strings.TrimSpace(sel) == "" {
				return &ConfigError{Provider: c.Name, Reason: fmt.Sprintf("field %q has an empty selector", field)}
			}
		}
	}
	if c.Login != nil && len(c.Login.ButtonSelectors) == 0 {
		return &ConfigError{Provider: c.Name, Reason: "login config has no login_button_selectors"}
	}
	if c.Passcode != nil {
		if c.Passcode.SubjectRegex != "" {
			if _, err := regexp.Compile(c.Passcode.SubjectRegex); err != nil {
				return &ConfigError{Provider: c.Name, Reason: fmt.Sprintf("bad passcode subject_regex: %v", err)}
			}
		}
		if c.Passcode.CodeRegex != "" {
			if _, err := regexp.Compile(c.Passcode.CodeRegex); err != nil {
				return &ConfigError{Provider: c.Name, Reason: fmt.Sprintf("bad passcode code_regex: %v", err)}
			}
		}
	}
	return nil
}

// LoadProviders reads every *.json file in dir into a validated
// ProviderConfig keyed by file stem.
func LoadProviders(dir string) (map[string]*ProviderConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Provider: dir, Reason: fmt.Sprintf("providers directory not readable: %v", err)}
	}
	configs := make(map[string]*ProviderConfig)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, &ConfigError{Provider: name, Reason: fmt.Sprintf("read: %v", err)}
		}
		cfg := &ProviderConfig{Name: name}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Provider: name, Reason: fmt.Sprintf("parse: %v", err)}
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs[name] = cfg
	}
	if len(configs) == 0 {
		return nil, &ConfigError{Provider: dir, Reason: "no provider JSON files found"}
	}
	return configs, nil
}
