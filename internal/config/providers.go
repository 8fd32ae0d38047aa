package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderKind selects the gateway implementation for a payment method
type ProviderKind string

const (
	ProviderKindCard        ProviderKind = "card_processor"
	ProviderKindWallet      ProviderKind = "wallet_processor"
	ProviderKindMobileMoney ProviderKind = "mobile_money_processor"
)

// ProviderConfig describes one payment provider
type ProviderConfig struct {
	// Method is the payment method tag stored on investments (e.g. "card", "paypal", "mpesa")
	Method            string        `yaml:"method"`
	Kind              ProviderKind  `yaml:"kind"`
	BaseURL           string        `yaml:"base_url"`
	APIKeySecret      string        `yaml:"api_key_secret"`
	WebhookSecret     string        `yaml:"webhook_secret"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	// ShortCode is the mobile-money paybill/till number
	ShortCode string `yaml:"short_code,omitempty"`
}

// ProvidersFile is the on-disk provider registry
type ProvidersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadProviders reads and validates the provider registry file
func LoadProviders(path string) (*ProvidersFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseProviders(raw)
}

// ParseProviders decodes and validates a provider registry document
func ParseProviders(raw []byte) (*ProvidersFile, error) {
	var file ProvidersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode providers file: %w", err)
	}

	seen := make(map[string]bool, len(file.Providers))
	for i := range file.Providers {
		p := &file.Providers[i]
		if p.Method == "" {
			return nil, fmt.Errorf("provider %d: method is required", i)
		}
		if seen[p.Method] {
			return nil, fmt.Errorf("provider %q: duplicate method", p.Method)
		}
		seen[p.Method] = true

		switch p.Kind {
		case ProviderKindCard, ProviderKindWallet, ProviderKindMobileMoney:
		default:
			return nil, fmt.Errorf("provider %q: unsupported kind %q", p.Method, p.Kind)
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: base_url is required", p.Method)
		}
		if p.WebhookSecret == "" {
			return nil, fmt.Errorf("provider %q: webhook_secret is required", p.Method)
		}
		if p.RequestsPerSecond <= 0 {
			p.RequestsPerSecond = 20
		}
		if p.Burst <= 0 {
			p.Burst = int(p.RequestsPerSecond) * 2
		}
		if p.Timeout <= 0 {
			p.Timeout = 30 * time.Second
		}
	}
	return &file, nil
}
