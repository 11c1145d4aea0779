package config

import (
	"strings"
	"time"
)

const (
	StripeModeLive = "live"
	StripeModeTest = "test"

	statementDescriptorMaxLen = 22
)

// StripeConfig holds processor credentials and payment policy.
type StripeConfig struct {
	Mode string `yaml:"mode"`

	LiveSecretKey      string `yaml:"live_secret_key"`
	LivePublishableKey string `yaml:"live_publishable_key"`
	LiveWebhookSecret  string `yaml:"live_webhook_secret"`
	TestSecretKey      string `yaml:"test_secret_key"`
	TestPublishableKey string `yaml:"test_publishable_key"`
	TestWebhookSecret  string `yaml:"test_webhook_secret"`

	// Currency is the store currency (ISO 4217).
	Currency string `yaml:"currency"`
	// MinimumAmounts overrides the minimum chargeable amount per currency,
	// in the smallest currency unit.
	MinimumAmounts      map[string]int64 `yaml:"minimum_amounts"`
	AllowPrepaidCards   bool             `yaml:"allow_prepaid_cards"`
	StatementDescriptor string           `yaml:"statement_descriptor"`

	// LogRequests enables logging of every processor call.
	LogRequests bool `yaml:"log_requests"`
	// MaxNetworkRetries is handed to the processor SDK transport. Zero keeps
	// retries user-driven.
	MaxNetworkRetries int64         `yaml:"max_network_retries"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// defaultMinimumAmounts are the processor minimum charge amounts in the
// smallest currency unit.
var defaultMinimumAmounts = map[string]int64{
	"USD": 50,
	"AED": 200,
	"AUD": 50,
	"BGN": 100,
	"BRL": 50,
	"CAD": 50,
	"CHF": 50,
	"CZK": 1500,
	"DKK": 250,
	"EUR": 50,
	"GBP": 30,
	"HKD": 400,
	"HUF": 17500,
	"INR": 50,
	"JPY": 50,
	"KRW": 100,
	"MXN": 1000,
	"MYR": 200,
	"NOK": 300,
	"NZD": 50,
	"PLN": 200,
	"RON": 200,
	"SEK": 300,
	"SGD": 50,
	"THB": 1000,
}

func (s *StripeConfig) applyDefaults() {
	if s.Mode == "" {
		s.Mode = StripeModeTest
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = 80 * time.Second
	}
}

func (s StripeConfig) validate() []string {
	var problems []string
	if s.Mode != StripeModeLive && s.Mode != StripeModeTest {
		problems = append(problems, "stripe.mode must be live or test")
	}
	if s.MaxNetworkRetries < 0 {
		problems = append(problems, "stripe.max_network_retries must not be negative")
	}
	return problems
}

func (s StripeConfig) IsLive() bool {
	return s.Mode == StripeModeLive
}

// SecretKey returns the API secret for the active mode.
func (s StripeConfig) SecretKey() string {
	if s.IsLive() {
		return s.LiveSecretKey
	}
	return s.TestSecretKey
}

func (s StripeConfig) PublishableKey() string {
	if s.IsLive() {
		return s.LivePublishableKey
	}
	return s.TestPublishableKey
}

// WebhookSecret returns the signing secret for the active mode.
func (s StripeConfig) WebhookSecret() string {
	if s.IsLive() {
		return s.LiveWebhookSecret
	}
	return s.TestWebhookSecret
}

// Configured reports whether API calls can be made at all.
func (s StripeConfig) Configured() bool {
	return s.SecretKey() != ""
}

func (s StripeConfig) StoreCurrency() string {
	return strings.ToUpper(s.Currency)
}

// MinimumAmount returns the minimum chargeable amount for currency in its
// smallest unit, or zero when none is known.
func (s StripeConfig) MinimumAmount(currency string) int64 {
	currency = strings.ToUpper(currency)
	for code, amount := range s.MinimumAmounts {
		if strings.ToUpper(code) == currency {
			return amount
		}
	}
	return defaultMinimumAmounts[currency]
}

// SanitizedStatementDescriptor strips characters the card networks reject and
// truncates to the 22 character limit.
func (s StripeConfig) SanitizedStatementDescriptor() string {
	return SanitizeStatementDescriptor(s.StatementDescriptor)
}

func SanitizeStatementDescriptor(descriptor string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'':
			return -1
		}
		return r
	}, descriptor)
	cleaned = strings.TrimSpace(cleaned)

	if runes := []rune(cleaned); len(runes) > statementDescriptorMaxLen {
		cleaned = strings.TrimSpace(string(runes[:statementDescriptorMaxLen]))
	}
	return cleaned
}
