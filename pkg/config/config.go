// Package config holds the runtime configuration: addresses, page
// selectors and the stabilization knobs. Everything has a default tuned
// for ChatGPT; a YAML file overrides individual fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	CDP    CDPConfig    `yaml:"cdp"`
	Chat   ChatConfig   `yaml:"chat"`
}

// ServerConfig configures the local exec/file server.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	Interpreter string `yaml:"interpreter"`
	WorkDir     string `yaml:"workdir"`
}

// CDPConfig configures the connection to the debugging endpoint.
type CDPConfig struct {
	URL         string `yaml:"url"`
	BypassProxy bool   `yaml:"bypass_proxy"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

// Timeout returns the evaluate round-trip budget.
func (c CDPConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ChatConfig describes the chat page: how to find its tab, which elements
// to drive, and how reply stabilization is tuned.
type ChatConfig struct {
	// BaseURL is the substring identifying any tab of the application;
	// ConversationURL identifies a tab with an open conversation and is
	// preferred during tab resolution.
	BaseURL         string `yaml:"base_url"`
	ConversationURL string `yaml:"conversation_url"`

	PromptSelector    string `yaml:"prompt_selector"`
	SendSelector      string `yaml:"send_selector"`
	UserSelector      string `yaml:"user_selector"`
	AssistantSelector string `yaml:"assistant_selector"`
	UserTextSelector  string `yaml:"user_text_selector"`
	MarkdownSelector  string `yaml:"markdown_selector"`

	// StableThreshold is the number of consecutive identical polls that
	// declare a streamed reply finished. PollIntervalMs is the poll
	// cadence; SendDelayMs is the pause between injecting text and
	// clicking send. Empirical values, deliberately configurable.
	StableThreshold int `yaml:"stable_threshold"`
	PollIntervalMs  int `yaml:"poll_interval_ms"`
	SendDelayMs     int `yaml:"send_delay_ms"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
}

// PollInterval returns the poll cadence.
func (c ChatConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SendDelay returns the pause between text injection and send.
func (c ChatConfig) SendDelay() time.Duration {
	if c.SendDelayMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.SendDelayMs) * time.Millisecond
}

// Timeout returns the default reply wait budget.
func (c ChatConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:18765",
			Interpreter: "python3",
		},
		CDP: CDPConfig{
			URL:         "http://127.0.0.1:9222",
			BypassProxy: true,
		},
		Chat: ChatConfig{
			BaseURL:           "chatgpt.com",
			ConversationURL:   "chatgpt.com/c/",
			PromptSelector:    "#prompt-textarea",
			SendSelector:      `button[data-testid="send-button"]`,
			UserSelector:      `[data-message-author-role="user"]`,
			AssistantSelector: `[data-message-author-role="assistant"]`,
			UserTextSelector:  ".whitespace-pre-wrap",
			MarkdownSelector:  ".markdown",
			StableThreshold:   3,
			TimeoutSeconds:    60,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
