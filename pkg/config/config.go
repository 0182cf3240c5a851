package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/fsgate/pkg/adapter/httpfs"
	"github.com/marmos91/fsgate/pkg/proxyuser"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FSGATE_LOGGING_LEVEL.
const EnvPrefix = "FSGATE"

// Config represents the complete fsgate configuration.
//
// This structure captures all configurable aspects of the gateway including:
//   - Logging and audit output
//   - The HTTP listener and gateway behavior
//   - Authentication, group membership and impersonation rules
//   - The backend filesystem and the stores behind it
//   - Metrics exposure
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FSGATE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct contains type-specific option maps (e.g. backend.content.s3) and
// only the section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Gateway configures the HTTP filesystem gateway
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway" json:"gateway"`

	// Audit configures the audit trail
	Audit AuditConfig `mapstructure:"audit" yaml:"audit" json:"audit"`

	// Auth selects how callers are authenticated
	Auth AuthConfig `mapstructure:"auth" yaml:"auth" json:"auth"`

	// Groups selects where group membership comes from
	Groups GroupsConfig `mapstructure:"groups" yaml:"groups" json:"groups"`

	// ProxyUsers maps a proxy user to the identities it may act as
	ProxyUsers map[string]proxyuser.Rule `mapstructure:"proxyusers" yaml:"proxyusers" json:"proxyusers"`

	// Backend configures the filesystem the gateway fronts
	Backend BackendConfig `mapstructure:"backend" yaml:"backend" json:"backend"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level" json:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format" json:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output" json:"output"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	// HTTP contains the listener settings.
	HTTP httpfs.HTTPConfig `mapstructure:"http" yaml:"http" json:"http"`

	// BaseURL replaces the backend address in every path returned to
	// clients, e.g. "http://gateway.example.com:14000".
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url" json:"base_url"`

	// AdminGroup members may read instrumentation.
	AdminGroup string `mapstructure:"admin_group" validate:"required" yaml:"admin_group" json:"admin_group"`

	// BufferSize is the copy buffer size in bytes.
	BufferSize int `mapstructure:"buffer_size" validate:"gt=0" yaml:"buffer_size" json:"buffer_size"`

	// Compression gzips JSON responses for clients that accept it.
	Compression bool `mapstructure:"compression" yaml:"compression" json:"compression"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Output is stdout, stderr, a file path, or "none" to disable auditing.
	Output string `mapstructure:"output" validate:"required" yaml:"output" json:"output"`
}

// AuthConfig selects the authenticator.
type AuthConfig struct {
	// Type specifies the authentication scheme
	// Valid values: pseudo, token
	Type string `mapstructure:"type" validate:"required,oneof=pseudo token" yaml:"type" json:"type"`

	// AnonymousUser is the identity of pseudo-auth requests without
	// user.name. Empty rejects them.
	AnonymousUser string `mapstructure:"anonymous_user" yaml:"anonymous_user" json:"anonymous_user"`

	// Tokens maps user names to bcrypt hashes of their bearer tokens.
	// Only used when Type = "token"
	Tokens map[string]string `mapstructure:"tokens" yaml:"tokens,omitempty" json:"tokens,omitempty"`
}

// GroupsConfig selects the group resolver.
type GroupsConfig struct {
	// Type specifies where membership is read from
	// Valid values: static, unix
	Type string `mapstructure:"type" validate:"required,oneof=static unix" yaml:"type" json:"type"`

	// Static maps group names to their members.
	// Only used when Type = "static"
	Static map[string][]string `mapstructure:"static" yaml:"static,omitempty" json:"static,omitempty"`
}

// BackendConfig configures the store-backed filesystem.
type BackendConfig struct {
	// URI is the backend address reported in file statuses before the
	// gateway rewrites it.
	URI string `mapstructure:"uri" validate:"required" yaml:"uri" json:"uri"`

	// Superuser bypasses permission checks and owns the root directory.
	Superuser string `mapstructure:"superuser" validate:"required" yaml:"superuser" json:"superuser"`

	// Supergroup members bypass permission checks.
	Supergroup string `mapstructure:"supergroup" yaml:"supergroup" json:"supergroup"`

	// Replication is the default replication factor of new files.
	Replication int16 `mapstructure:"replication" validate:"gt=0" yaml:"replication" json:"replication"`

	// BlockSize is the default block size of new files in bytes.
	BlockSize int64 `mapstructure:"block_size" validate:"gt=0" yaml:"block_size" json:"block_size"`

	// Permission is the octal mode of files created with the default ACL.
	// Quote it in YAML ("0644") so it is not read as a decimal number.
	Permission string `mapstructure:"permission" validate:"required" yaml:"permission" json:"permission"`

	// DirPermission is the octal mode of directories created with the
	// default ACL.
	DirPermission string `mapstructure:"dir_permission" validate:"required" yaml:"dir_permission" json:"dir_permission"`

	// Metadata selects the inode store.
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata" json:"metadata"`

	// Content selects the blob store.
	Content ContentConfig `mapstructure:"content" yaml:"content" json:"content"`
}

// MetadataConfig specifies metadata store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type MetadataConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type" json:"type"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty" json:"badger,omitempty"`
}

// ContentConfig specifies content store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: memory, filesystem, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory filesystem s3" yaml:"type" json:"type"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty" json:"filesystem,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty" json:"s3,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics server and collects gateway metrics.
	// The INSTRUMENTATION operation reports an empty snapshot when false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Port is the metrics listener port.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port" json:"port"`
}

// Load loads configuration from file, environment, flags, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Flags that were explicitly set
//  2. Environment variables (FSGATE_*)
//  3. Configuration file
//  4. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//   - flags: Optional flag set; flags listed in FlagKeys override the
//     corresponding keys when set
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FSGATE_ prefix and underscores
	// Example: FSGATE_GATEWAY_BASE_URL=http://gw:14000
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only consults keys viper already knows about, so the
	// scalar keys are registered up front.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/fsgate/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys lists the keys that may be overridden from the environment
// without appearing in the config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"gateway.http.bind_address",
	"gateway.http.port",
	"gateway.http.max_connections",
	"gateway.http.requests_per_second",
	"gateway.base_url",
	"gateway.admin_group",
	"gateway.buffer_size",
	"gateway.compression",
	"audit.output",
	"auth.type",
	"auth.anonymous_user",
	"groups.type",
	"backend.uri",
	"backend.superuser",
	"backend.supergroup",
	"backend.metadata.type",
	"backend.content.type",
	"metrics.enabled",
	"metrics.port",
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"bind":         "gateway.http.bind_address",
	"port":         "gateway.http.port",
	"base-url":     "gateway.base_url",
	"admin-group":  "gateway.admin_group",
	"metrics":      "metrics.enabled",
	"metrics-port": "metrics.port",
}

// bindFlags binds every flag of flags that appears in FlagKeys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fsgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fsgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
