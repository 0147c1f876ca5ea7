package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/scholar/internal/ledger"
	"github.com/haasonsaas/scholar/internal/models"
)

// FieldError is a validation failure for one config field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldErr(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks cfg for inconsistent values. All failures are returned
// joined.
func (c *Config) Validate() error {
	var errs []error

	if err := ValidateVersion(c.Version); err != nil {
		errs = append(errs, fieldErr("version", "%v", err))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fieldErr("logging.level", "unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fieldErr("logging.format", "must be json or text, got %q", c.Logging.Format))
	}

	tracing := c.Observability.Tracing
	if tracing.SamplingRate < 0 || tracing.SamplingRate > 1 {
		errs = append(errs, fieldErr("observability.tracing.sampling_rate", "must be between 0 and 1"))
	}
	if tracing.Enabled && strings.TrimSpace(tracing.Endpoint) == "" {
		errs = append(errs, fieldErr("observability.tracing.endpoint", "required when tracing is enabled"))
	}

	orch := c.Orchestrator
	if orch.AttemptTimeout < 0 {
		errs = append(errs, fieldErr("orchestrator.attempt_timeout", "must not be negative"))
	}
	if orch.RequestDeadline < 0 {
		errs = append(errs, fieldErr("orchestrator.request_deadline", "must not be negative"))
	}
	if orch.AttemptTimeout > 0 && orch.RequestDeadline > 0 && orch.AttemptTimeout > orch.RequestDeadline {
		errs = append(errs, fieldErr("orchestrator.attempt_timeout", "exceeds request_deadline (%s > %s)", orch.AttemptTimeout, orch.RequestDeadline))
	}
	if orch.MaxOutputTokens < 0 {
		errs = append(errs, fieldErr("orchestrator.max_output_tokens", "must not be negative"))
	}

	if c.Classifier.Timeout < 0 {
		errs = append(errs, fieldErr("classifier.timeout", "must not be negative"))
	}

	for name := range c.Providers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fieldErr("providers", "provider name must not be empty"))
		}
	}

	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateLedger()...)

	if c.Server.TokenExpiry < 0 {
		errs = append(errs, fieldErr("server.token_expiry", "must not be negative"))
	}
	if rl := c.Server.RateLimit; rl.RequestsPerSecond < 0 || rl.BurstSize < 0 {
		errs = append(errs, fieldErr("server.rate_limit", "rates must not be negative"))
	}
	for i, k := range c.Server.APIKeys {
		if strings.TrimSpace(k.Key) == "" {
			errs = append(errs, fieldErr(fmt.Sprintf("server.api_keys[%d].key", i), "is required"))
		}
	}

	return errors.Join(errs...)
}

// validateModels builds the catalog and chain table the way startup does, so
// bad ids surface at load time.
func (c *Config) validateModels() []error {
	reg, err := c.Registry()
	if err != nil {
		return []error{fieldErr("models", "%v", err)}
	}

	var errs []error
	if _, err := models.NewChainTable(reg, c.ChainConfig()); err != nil {
		errs = append(errs, fieldErr("chains", "%v", err))
	}
	if c.Classifier.Model != "" {
		if _, err := reg.Lookup(c.Classifier.Model); err != nil {
			errs = append(errs, fieldErr("classifier.model", "%v", err))
		}
	}
	for task, id := range c.Preferences.TaskOverrides {
		if !task.Valid() {
			errs = append(errs, fieldErr("preferences.task_overrides", "unknown task category %q", task))
			continue
		}
		if _, err := reg.Lookup(id); err != nil {
			errs = append(errs, fieldErr(fmt.Sprintf("preferences.task_overrides.%s", task), "%v", err))
		}
	}
	if id := c.Preferences.DefaultModel; id != "" {
		if _, err := reg.Lookup(id); err != nil {
			errs = append(errs, fieldErr("preferences.default_model", "%v", err))
		}
	}
	return errs
}

func (c *Config) validateLedger() []error {
	driver := strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	if driver == "memory" {
		if c.Ledger.MaxRecords < 0 {
			return []error{fieldErr("ledger.max_records", "must not be negative")}
		}
		return nil
	}
	if _, err := ledger.ParseDialect(driver); err != nil {
		return []error{fieldErr("ledger.driver", "%v", err)}
	}
	if strings.TrimSpace(c.Ledger.DSN) == "" {
		return []error{fieldErr("ledger.dsn", "required for driver %q", driver)}
	}
	return nil
}
