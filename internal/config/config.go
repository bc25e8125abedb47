// Package config loads the application configuration from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Provider names accepted in the PROVIDER environment variable.
const (
	ProviderGraph  = "graph"
	ProviderGoogle = "google"
	ProviderDAV    = "dav"
)

// DefaultCalendarName is used when CALENDAR_NAME is not set.
const DefaultCalendarName = "Birthdays"

// Config holds everything a sync run needs. Identity fields are validated
// before any network call so that misconfiguration fails fast with a
// remediation hint instead of a cryptic transport error.
type Config struct {
	Provider     string
	CalendarName string

	// Identity platform (graph provider).
	ClientID     string
	TenantID     string
	ClientSecret string
	TargetUser   string

	// Google provider.
	GoogleCredentialsPath string

	// DAV provider.
	DAVServerURL      string
	DAVUsername       string
	DAVPassword       string
	DAVAddressBookURL string

	TokenPath string
	SentryDSN string
}

// FromEnv loads configuration from the environment, reading a .env file
// first when one is present. It returns an error if the selected provider's
// required identity fields are missing.
func FromEnv() (*Config, error) {
	// A missing .env file is fine; deployed environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Provider:     getenvDefault("PROVIDER", ProviderGraph),
		CalendarName: getenvDefault("CALENDAR_NAME", DefaultCalendarName),

		ClientID:     os.Getenv("CLIENT_ID"),
		TenantID:     os.Getenv("TENANT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		TargetUser:   os.Getenv("TARGET_USER"),

		GoogleCredentialsPath: os.Getenv("GOOGLE_CREDENTIALS_PATH"),

		DAVServerURL:      os.Getenv("DAV_SERVER_URL"),
		DAVUsername:       os.Getenv("DAV_USERNAME"),
		DAVPassword:       os.Getenv("DAV_PASSWORD"),
		DAVAddressBookURL: os.Getenv("DAV_ADDRESSBOOK_URL"),

		TokenPath: os.Getenv("TOKEN_PATH"),
		SentryDSN: os.Getenv("SENTRY_DSN"),
	}

	if cfg.TokenPath == "" {
		path, err := xdg.StateFile("birthdaysync/token.json")
		if err != nil {
			// No usable state directory; fall back to the working directory.
			path = "token.json"
		}
		cfg.TokenPath = path
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderGraph:
		if c.ClientID == "" || c.TenantID == "" {
			return fmt.Errorf("missing required environment variables: CLIENT_ID and TENANT_ID must be set for the graph provider")
		}
	case ProviderGoogle:
		if c.GoogleCredentialsPath == "" {
			return fmt.Errorf("missing required environment variables: GOOGLE_CREDENTIALS_PATH must be set for the google provider")
		}
	case ProviderDAV:
		if c.DAVServerURL == "" || c.DAVUsername == "" || c.DAVPassword == "" {
			return fmt.Errorf("missing required environment variables: DAV_SERVER_URL, DAV_USERNAME and DAV_PASSWORD must be set for the dav provider")
		}
	default:
		return fmt.Errorf("PROVIDER must be %q, %q or %q, got %q", ProviderGraph, ProviderGoogle, ProviderDAV, c.Provider)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
