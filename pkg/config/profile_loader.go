package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile is an environment-specific operational policy layered on
// top of the base Config. Profiles tune custody limits without code changes.
type DeploymentProfile struct {
	Name      string          `yaml:"name" json:"name"`
	Code      string          `yaml:"code" json:"code"`
	Custody   CustodyConfig   `yaml:"custody" json:"custody"`
	Locking   LockingConfig   `yaml:"locking" json:"locking"`
	Transport TransportConfig `yaml:"transport" json:"transport"`
}

// CustodyConfig bounds per-delegation resources. RequireApproval is a pointer
// so an absent key keeps the base Config's setting.
type CustodyConfig struct {
	LedgerSlots     uint8 `yaml:"ledger_slots" json:"ledger_slots"`
	MaxRules        uint8 `yaml:"max_rules" json:"max_rules"`
	MaxTreeBytes    int   `yaml:"max_tree_bytes" json:"max_tree_bytes"`
	RequireApproval *bool `yaml:"require_approval,omitempty" json:"require_approval,omitempty"`
}

// LockingConfig controls request lock behavior.
type LockingConfig struct {
	Backend   string `yaml:"backend" json:"backend"` // "memory" | "redis"
	TTLMillis int    `yaml:"ttl_ms" json:"ttl_ms"`
}

// TransportConfig controls API throttling.
type TransportConfig struct {
	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// LoadProfile loads a deployment profile YAML by code. It searches the
// profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile DeploymentProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_prod.yaml -> prod
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// Apply overlays the profile's operational settings onto a base Config.
// Zero-valued profile fields leave the base setting untouched.
func (p *DeploymentProfile) Apply(cfg *Config) {
	if p.Custody.LedgerSlots > 0 {
		cfg.LedgerSlots = p.Custody.LedgerSlots
	}
	if p.Custody.MaxRules > 0 {
		cfg.MaxRules = p.Custody.MaxRules
	}
	if p.Custody.MaxTreeBytes > 0 {
		cfg.MaxTreeBytes = p.Custody.MaxTreeBytes
	}
	if p.Custody.RequireApproval != nil {
		cfg.RequireApproval = *p.Custody.RequireApproval
	}
	if p.Locking.Backend != "" {
		cfg.LockBackend = p.Locking.Backend
	}
	if p.Locking.TTLMillis > 0 {
		cfg.LockTTLMillis = p.Locking.TTLMillis
	}
	if p.Transport.RateLimitRPS > 0 {
		cfg.RateLimitRPS = p.Transport.RateLimitRPS
	}
	if p.Transport.RateLimitBurst > 0 {
		cfg.RateLimitBurst = p.Transport.RateLimitBurst
	}
}
