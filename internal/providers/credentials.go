package providers

import (
	"os"
	"strings"
)

// Credentials resolves a provider's secret. A missing or empty secret means
// the provider cannot be used for this request.
type Credentials interface {
	Lookup(provider string) (string, bool)
}

// StaticCredentials maps provider keys to secrets.
type StaticCredentials map[string]string

// Lookup implements Credentials. Provider names match case-insensitively so
// request payloads may send "OpenRouter".
func (c StaticCredentials) Lookup(provider string) (string, bool) {
	secret, ok := c[provider]
	if !ok {
		for name, v := range c {
			if strings.EqualFold(name, provider) {
				secret = v
				break
			}
		}
	}
	secret = strings.TrimSpace(secret)
	return secret, secret != ""
}

// DefaultEnvKeys lists the environment variables consulted per provider, in
// order.
var DefaultEnvKeys = map[string][]string{
	"google":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
	"groq":       {"GROQ_API_KEY"},
}

// EnvCredentials reads secrets from the process environment.
type EnvCredentials struct {
	Keys map[string][]string
}

// Lookup implements Credentials.
func (c EnvCredentials) Lookup(provider string) (string, bool) {
	keys := c.Keys
	if keys == nil {
		keys = DefaultEnvKeys
	}
	for _, name := range keys[provider] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true
		}
	}
	return "", false
}

// ChainCredentials returns the first secret found among sources.
type ChainCredentials []Credentials

// Lookup implements Credentials.
func (c ChainCredentials) Lookup(provider string) (string, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if key, ok := src.Lookup(provider); ok {
			return key, true
		}
	}
	return "", false
}

// NoCredentials has no secrets.
var NoCredentials Credentials = StaticCredentials(nil)
