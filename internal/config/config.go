// =============================================================================
// Assembly Uploader - Configuration Module
// =============================================================================
//
// This module is responsible for loading the application configuration and
// the Webin credentials used to talk to ENA.
//
// CONFIGURATION SOURCES:
//   1. Config file (assembly-uploader.yaml): ENA endpoints, timeouts, retry
//      policy, logging and journal settings. The file is optional; every
//      setting has a default.
//   2. Environment: ENA_WEBIN and ENA_WEBIN_PASSWORD hold the Webin account
//      credentials. They are only required by operations that need them
//      (private queries, submissions, releases).
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultConfigFilename is the config file looked up when --config is not given.
	DefaultConfigFilename = "assembly-uploader.yaml"

	// EnvWebinUser and EnvWebinPassword name the credential variables.
	EnvWebinUser     = "ENA_WEBIN"
	EnvWebinPassword = "ENA_WEBIN_PASSWORD"

	DefaultPortalSearchURL = "https://www.ebi.ac.uk/ena/portal/api/search"
	DefaultReportURL       = "https://www.ebi.ac.uk/ena/submit/report/"
	DefaultDropBoxTestURL  = "https://wwwdev.ebi.ac.uk/ena/submit/drop-box/submit"
	DefaultDropBoxProdURL  = "https://www.ebi.ac.uk/ena/submit/drop-box/submit/"

	DefaultTimeout       = 60 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = time.Second
	DefaultLogLevel      = "info"
	DefaultJournalFile   = ".assembly_uploader.db"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is validated.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidRetryAttempts is returned for a non-positive retry count.
	errInvalidRetryAttempts = errors.New("retry attempts must be at least 1")
)

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the global application configuration.
type Config struct {
	// ENA holds the remote endpoints.
	ENA ENAConfig `yaml:"ena"`

	// Retry controls how ENA queries are retried.
	Retry RetryConfig `yaml:"retry"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	LogLevel string `yaml:"log_level"`

	// Journal controls the local receipt journal.
	Journal JournalConfig `yaml:"journal"`

	// DefaultCenter is used by study_xmls when --center is not given.
	DefaultCenter string `yaml:"default_center"`
}

// ENAConfig lists the ENA service endpoints.
type ENAConfig struct {
	// PortalSearchURL is the public portal search API.
	PortalSearchURL string `yaml:"portal_search_url"`

	// ReportURL is the base URL of the Webin report API used for private data.
	ReportURL string `yaml:"report_url"`

	// DropBoxTestURL and DropBoxProdURL are the XML submission endpoints.
	// The test server discards registrations after 24 hours.
	DropBoxTestURL string `yaml:"dropbox_test_url"`
	DropBoxProdURL string `yaml:"dropbox_prod_url"`

	// Timeout bounds every HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig controls the retry policy of ENA queries.
type RetryConfig struct {
	// Attempts is the total number of tries, the first one included.
	Attempts int `yaml:"attempts"`

	// Backoff is the base delay; the n-th retry waits n*Backoff.
	Backoff time.Duration `yaml:"backoff"`
}

// JournalConfig controls the receipt journal.
type JournalConfig struct {
	// Disabled turns journaling off.
	Disabled bool `yaml:"disabled"`

	// Path is the bbolt database file. Relative paths are resolved against
	// the working directory.
	Path string `yaml:"path"`
}

// DropBoxURL returns the submission endpoint for test or production mode.
func (c *Config) DropBoxURL(test bool) string {
	if test {
		return c.ENA.DropBoxTestURL
	}

	return c.ENA.DropBoxProdURL
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)

	return &cfg
}

// Load loads the configuration from a YAML file.
//
// A missing file at the default location is not an error: the defaults are
// returned instead. A missing file that was explicitly requested is.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigFilename
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return Default(), nil
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document into a validated configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.ENA.PortalSearchURL == "" {
		cfg.ENA.PortalSearchURL = DefaultPortalSearchURL
	}
	if cfg.ENA.ReportURL == "" {
		cfg.ENA.ReportURL = DefaultReportURL
	}
	if cfg.ENA.DropBoxTestURL == "" {
		cfg.ENA.DropBoxTestURL = DefaultDropBoxTestURL
	}
	if cfg.ENA.DropBoxProdURL == "" {
		cfg.ENA.DropBoxProdURL = DefaultDropBoxProdURL
	}
	if cfg.ENA.Timeout <= 0 {
		cfg.ENA.Timeout = DefaultTimeout
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = DefaultRetryAttempts
	}
	if cfg.Retry.Backoff == 0 {
		cfg.Retry.Backoff = DefaultRetryBackoff
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalFile
	}
}

// Validate checks the configuration for malformed values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	endpoints := map[string]string{
		"portal_search_url": cfg.ENA.PortalSearchURL,
		"report_url":        cfg.ENA.ReportURL,
		"dropbox_test_url":  cfg.ENA.DropBoxTestURL,
		"dropbox_prod_url":  cfg.ENA.DropBoxProdURL,
	}
	for name, raw := range endpoints {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q is not an absolute URL", name, raw)
		}
	}

	if cfg.Retry.Attempts < 1 {
		return errInvalidRetryAttempts
	}

	return nil
}

// =============================================================================
// WEBIN CREDENTIALS
// =============================================================================

// Credentials holds a Webin account.
type Credentials struct {
	Username string
	Password string
}

// MissingCredentialsError is returned when a credential variable is unset.
type MissingCredentialsError struct {
	Variable string
}

func (e MissingCredentialsError) Error() string {
	return fmt.Sprintf("the variable %s is missing from the env", e.Variable)
}

// LoadCredentials reads the Webin credentials from the environment.
// Unset variables yield empty fields; use EnsureCredentials to require them.
func LoadCredentials() Credentials {
	v := viper.New()
	v.AutomaticEnv()

	return Credentials{
		Username: v.GetString(EnvWebinUser),
		Password: v.GetString(EnvWebinPassword),
	}
}

// EnsureCredentials reads the Webin credentials and fails if either is unset.
func EnsureCredentials() (Credentials, error) {
	creds := LoadCredentials()
	if creds.Username == "" {
		return creds, MissingCredentialsError{Variable: EnvWebinUser}
	}
	if creds.Password == "" {
		return creds, MissingCredentialsError{Variable: EnvWebinPassword}
	}

	return creds, nil
}

// IsSet reports whether both credential fields are filled.
func (c Credentials) IsSet() bool {
	return c.Username != "" && c.Password != ""
}
