package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		missing = append(missing, "REDIS_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Email.Enabled && strings.TrimSpace(c.Email.SMTPHost) == "" {
		missing = append(missing, "SMTP_HOST")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return c.Registry.Validate()
}

// Validate rejects pricing and lifecycle settings the accounting rules cannot work with.
func (r RegistryConfig) Validate() error {
	var problems []string

	if !r.PriceUserRegistration.IsPositive() {
		problems = append(problems, "PRICE_USER_REGISTRATION must be positive")
	}
	if !r.PriceAgentRegistration.IsPositive() {
		problems = append(problems, "PRICE_AGENT_REGISTRATION must be positive")
	}
	if r.FreeRegistrationThreshold <= 0 {
		problems = append(problems, "FREE_REGISTRATION_THRESHOLD must be positive")
	}
	if r.TransferTTL <= 0 {
		problems = append(problems, "TRANSFER_TTL must be positive")
	}
	if r.RegistrationValidity <= 0 {
		problems = append(problems, "REGISTRATION_VALIDITY must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid registry configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
