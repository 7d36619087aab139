//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ListenerConfig describes one front-end accept loop.
type ListenerConfig struct {
	Name     string `yaml:"name"`
	Addr     string `yaml:"addr"`
	Protocol string `yaml:"protocol"` // "http_proxy" | "socks5"
}

// TLSProfileConfig names the floor/ceiling and cipher policy a
// [tlsintercept.Config] is built from.
type TLSProfileConfig struct {
	Name           string   `yaml:"name"`
	MinVersion     string   `yaml:"min_version"`
	MaxVersion     string   `yaml:"max_version"`
	CipherSuites   []string `yaml:"cipher_suites"`
	TLCP           bool     `yaml:"tlcp"`
	SessionCacheCap int     `yaml:"session_cache_capacity"`
}

// AdaptationConfig names one content-adaptation endpoint.
type AdaptationConfig struct {
	Name         string        `yaml:"name"`
	ServiceURI   string        `yaml:"service_uri"`
	PreviewLimit int           `yaml:"preview_limit"`
	Bypass       bool          `yaml:"bypass"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
}

// UserPolicyConfig bundles the per-user knobs §5/§6 reference: protocol
// bans, idle limits, and forbidden-rule toggles.
type UserPolicyConfig struct {
	Name                  string   `yaml:"name"`
	ProhibitUnknownProtocol bool   `yaml:"prohibit_unknown_protocol"`
	ProhibitTimeoutProtocol bool   `yaml:"prohibit_timeout_protocol"`
	MaxIdleCount          int      `yaml:"max_idle_count"`
	MaxInspectionDepth    int      `yaml:"max_inspection_depth"`
	BannedUpgradeTokens   []string `yaml:"banned_upgrade_tokens"`
}

// StickyConfig configures [sticky]'s username-parameter parsing.
type StickyConfig struct {
	Separator    string        `yaml:"separator"`
	DomainSuffix string        `yaml:"domain_suffix"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
}

// ProxyConfig is the top-level tree a config file unmarshals into.
type ProxyConfig struct {
	Listeners   []ListenerConfig   `yaml:"listeners"`
	TLSProfiles []TLSProfileConfig `yaml:"tls_profiles"`
	Adaptation  []AdaptationConfig `yaml:"adaptation"`
	UserPolicies []UserPolicyConfig `yaml:"user_policies"`
	Sticky      StickyConfig       `yaml:"sticky"`
}

// Load reads and parses a [ProxyConfig] from path.
func Load(path string) (*ProxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg ProxyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ListenerByName returns the first listener named name, if any.
func (c *ProxyConfig) ListenerByName(name string) (ListenerConfig, bool) {
	for _, l := range c.Listeners {
		if l.Name == name {
			return l, true
		}
	}
	return ListenerConfig{}, false
}

// TLSProfileByName returns the first TLS profile named name, if any.
func (c *ProxyConfig) TLSProfileByName(name string) (TLSProfileConfig, bool) {
	for _, p := range c.TLSProfiles {
		if p.Name == name {
			return p, true
		}
	}
	return TLSProfileConfig{}, false
}
