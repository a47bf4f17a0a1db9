// Package config loads and persists settings.json, the process-wide
// configuration file described in spec.md §6 and §9. Reads decode JSON, or
// YAML for a .yaml/.yml path; writes are atomic (temp file + rename) so readers never observe a
// partial file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BrowserConfig is harness.browser.* in settings.json.
type BrowserConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	Provider          string   `json:"provider" yaml:"provider"` // "cdp" | "broker" | "auto"
	ProfilePath       string   `json:"profile_path" yaml:"profile_path"`
	ProfileDirectory  string   `json:"profile_directory" yaml:"profile_directory"`
	DebuggerURL       string   `json:"debugger_url" yaml:"debugger_url"`
	DebuggerPorts     []int    `json:"debugger_ports" yaml:"debugger_ports"`
	MCPChannel        string   `json:"mcp_channel" yaml:"mcp_channel"`
	OpenDomainAccess  bool     `json:"open_domain_access" yaml:"open_domain_access"`
	HardStopPayments  bool     `json:"hard_stop_payments" yaml:"hard_stop_payments"`
	UseClaudeChrome   bool     `json:"use_claude_chrome" yaml:"use_claude_chrome"`
}

// QuietHours is harness.quiet_hours.{start,end}, HH:MM local, wrap-around allowed.
type QuietHours struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// HarnessConfig is harness.* in settings.json.
type HarnessConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Autonomy   string        `json:"autonomy" yaml:"autonomy"` // "low" | "normal" | "strict"
	QuietHours QuietHours    `json:"quiet_hours" yaml:"quiet_hours"`
	DigestTime string        `json:"digest_time" yaml:"digest_time"` // HH:MM local
	Browser    BrowserConfig `json:"browser" yaml:"browser"`
}

// WhatsAppConfig is channels.whatsapp.*.
type WhatsAppConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	SelfCommandOnly   bool   `json:"self_command_only" yaml:"self_command_only"`
	SelfCommandPrefix string `json:"self_command_prefix" yaml:"self_command_prefix"`
	RequireSelfChat   bool   `json:"require_self_chat" yaml:"require_self_chat"`
}

// DiscordConfig is channels.discord.*. A blank Token leaves Discord
// disabled regardless of Enabled, since the adapter cannot connect without
// one.
type DiscordConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	Token           string   `json:"token" yaml:"token"`
	AllowedGuilds   []string `json:"allowed_guilds" yaml:"allowed_guilds"`
	AllowedChannels []string `json:"allowed_channels" yaml:"allowed_channels"`
}

// ChannelsConfig is channels.*.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
}

// TeamConfig names a fixed group of agents with one designated leader, the
// unit the router resolves "@team" mentions against.
type TeamConfig struct {
	ID      string   `json:"id" yaml:"id"`
	Leader  string   `json:"leader" yaml:"leader"`
	Members []string `json:"members" yaml:"members"`
}

// RunnerConfig is agents.runner in settings.json: the model-runner
// subprocess every agent invocation (generate, verify, revise) is spawned
// from, per spec.md §4.D.
type RunnerConfig struct {
	Binary        string   `json:"binary" yaml:"binary"`
	Family        string   `json:"family" yaml:"family"` // "one_shot" | "framed"
	Model         string   `json:"model" yaml:"model"`
	FallbackModel string   `json:"fallback_model" yaml:"fallback_model"`
	VerifierModel string   `json:"verifier_model" yaml:"verifier_model"`
	ExtraArgs     []string `json:"extra_args" yaml:"extra_args"`
	WorkspaceDir  string   `json:"workspace_dir" yaml:"workspace_dir"`
}

// AgentsConfig is agents.* in settings.json: the known agentIds, their team
// groupings, and the shared model-runner configuration.
type AgentsConfig struct {
	IDs    []string     `json:"ids" yaml:"ids"`
	Teams  []TeamConfig `json:"teams" yaml:"teams"`
	Runner RunnerConfig `json:"runner" yaml:"runner"`
}

// Config is the full settings.json document.
type Config struct {
	Harness  HarnessConfig  `json:"harness" yaml:"harness"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Agents   AgentsConfig   `json:"agents" yaml:"agents"`
}

// Default returns the built-in defaults as a fully-populated struct
// literal rather than a zero value.
func Default() *Config {
	return &Config{
		Harness: HarnessConfig{
			Enabled:  true,
			Autonomy: "normal",
			QuietHours: QuietHours{
				Start: "22:00",
				End:   "07:00",
			},
			DigestTime: "08:00",
			Browser: BrowserConfig{
				Enabled:          false,
				Provider:         "cdp",
				DebuggerPorts:    []int{9222, 9223, 9224},
				HardStopPayments: true,
			},
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:           true,
				SelfCommandOnly:   true,
				SelfCommandPrefix: "/",
				RequireSelfChat:   false,
			},
			Discord: DiscordConfig{
				Enabled: false,
			},
		},
		Agents: AgentsConfig{
			IDs: []string{"default"},
			Runner: RunnerConfig{
				Binary: "claude",
				Family: "framed",
				Model:  "claude",
			},
		},
	}
}

// Directory adapts AgentsConfig into the lookup shape internal/router's
// Resolve and ExtractHandoffs need.
type Directory struct {
	cfg AgentsConfig
}

// NewDirectory builds a router-compatible Directory over cfg.
func NewDirectory(cfg AgentsConfig) Directory {
	return Directory{cfg: cfg}
}

// TeamLeader reports the leader agentId for a team name.
func (d Directory) TeamLeader(ident string) (string, bool) {
	for _, t := range d.cfg.Teams {
		if t.ID == ident {
			return t.Leader, true
		}
	}
	return "", false
}

// IsAgent reports whether ident is a known agentId.
func (d Directory) IsAgent(ident string) bool {
	for _, a := range d.cfg.IDs {
		if a == ident {
			return true
		}
	}
	return false
}

// TeamForAgent returns the team containing agentID as leader, else the
// first team listing it as a member.
func (d Directory) TeamForAgent(agentID string) (string, bool) {
	for _, t := range d.cfg.Teams {
		if t.Leader == agentID {
			return t.ID, true
		}
	}
	for _, t := range d.cfg.Teams {
		for _, m := range t.Members {
			if m == agentID {
				return t.ID, true
			}
		}
	}
	return "", false
}

// TeamMembers returns every agentId in teamID, including the leader.
func (d Directory) TeamMembers(teamID string) []string {
	for _, t := range d.cfg.Teams {
		if t.ID == teamID {
			members := append([]string{t.Leader}, t.Members...)
			return members
		}
	}
	return nil
}

// Load reads settings from path, merging onto Default() so a sparse or
// missing file still yields a fully-populated Config. A .yaml/.yml path is
// parsed as YAML (for a hand-authored override file); anything else is
// parsed as JSON, the format Save always writes. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ResolveSecrets(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if len(data) == 0 {
		ResolveSecrets(cfg)
		return cfg, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	ResolveSecrets(cfg)
	return cfg, nil
}

// Save writes cfg to path atomically: a temp file in the same directory is
// written and fsynced, then renamed over the destination, per spec.md §9's
// "Settings writes... must be atomic (tmp file + rename)".
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename config into place: %w", err)
	}
	return nil
}
