package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/backend"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Gateway.HTTP.Enabled {
		return fmt.Errorf("gateway.http: the HTTP adapter must be enabled")
	}

	u, err := url.Parse(cfg.Gateway.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("gateway.base_url: %q is not an absolute http(s) URL", cfg.Gateway.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("gateway.base_url: %q must not carry a query or fragment", cfg.Gateway.BaseURL)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Gateway.HTTP.Port {
		return fmt.Errorf("metrics.port: %d is already used by the gateway", cfg.Metrics.Port)
	}

	if _, err := ParseMode(cfg.Backend.Permission); err != nil {
		return fmt.Errorf("backend.permission: %w", err)
	}
	if _, err := ParseMode(cfg.Backend.DirPermission); err != nil {
		return fmt.Errorf("backend.dir_permission: %w", err)
	}

	if !auth.ValidUserName(cfg.Backend.Superuser) {
		return fmt.Errorf("backend.superuser: invalid user name %q", cfg.Backend.Superuser)
	}

	if cfg.Auth.Type == "token" && len(cfg.Auth.Tokens) == 0 {
		return fmt.Errorf("auth.tokens: token authentication requires at least one token")
	}
	if cfg.Auth.AnonymousUser != "" && !auth.ValidUserName(cfg.Auth.AnonymousUser) {
		return fmt.Errorf("auth.anonymous_user: invalid user name %q", cfg.Auth.AnonymousUser)
	}

	for caller, rule := range cfg.ProxyUsers {
		if len(rule.Hosts) == 0 {
			return fmt.Errorf("proxyusers.%s: hosts must not be empty", caller)
		}
		if len(rule.Groups) == 0 && len(rule.Users) == 0 {
			return fmt.Errorf("proxyusers.%s: at least one of groups or users is required", caller)
		}
	}

	return nil
}

// ParseMode parses an octal permission such as "0644" or "755".
func ParseMode(s string) (backend.Permission, error) {
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", s)
	}
	if mode > 0o777 {
		return 0, fmt.Errorf("mode %q out of range", s)
	}
	return backend.NewPermission(uint32(mode)), nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
