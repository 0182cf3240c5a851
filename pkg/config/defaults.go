package config

import (
	"strings"
	"time"

	"github.com/marmos91/fsgate/pkg/adapter/httpfs"
	"github.com/marmos91/fsgate/pkg/gateway"
	"github.com/marmos91/fsgate/pkg/proxyuser"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyGatewayDefaults(&cfg.Gateway)
	applyAuditDefaults(&cfg.Audit)
	applyAuthDefaults(&cfg.Auth)
	applyGroupsDefaults(&cfg.Groups)
	applyBackendDefaults(&cfg.Backend)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ProxyUsers == nil {
		cfg.ProxyUsers = make(map[string]proxyuser.Rule)
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyGatewayDefaults sets gateway and listener defaults.
func applyGatewayDefaults(cfg *GatewayConfig) {
	// The HTTP adapter is the only front end, so an unconfigured listener
	// (port 0) is enabled on the default port. An explicit enabled: false
	// with a port set is left alone and rejected by validation.
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = httpfs.DefaultPort
		cfg.HTTP.Enabled = true
	}

	if cfg.HTTP.ReadHeaderTimeout == 0 {
		cfg.HTTP.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 2 * time.Minute
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:14000"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.AdminGroup == "" {
		cfg.AdminGroup = gateway.DefaultAdminGroup
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = gateway.DefaultBufferSize
	}
}

// applyAuditDefaults sets audit defaults.
func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyAuthDefaults sets authentication defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Type == "" {
		cfg.Type = "pseudo"
	}
	cfg.Type = strings.ToLower(cfg.Type)

	if cfg.Tokens == nil {
		cfg.Tokens = make(map[string]string)
	}
}

// applyGroupsDefaults sets group resolver defaults.
func applyGroupsDefaults(cfg *GroupsConfig) {
	if cfg.Type == "" {
		cfg.Type = "static"
	}
	cfg.Type = strings.ToLower(cfg.Type)

	if cfg.Static == nil {
		cfg.Static = make(map[string][]string)
	}
}

// applyBackendDefaults sets backend and store defaults.
func applyBackendDefaults(cfg *BackendConfig) {
	if cfg.URI == "" {
		cfg.URI = "storefs://localhost:8020"
	}
	if cfg.Superuser == "" {
		cfg.Superuser = "hdfs"
	}
	if cfg.Supergroup == "" {
		cfg.Supergroup = "supergroup"
	}
	if cfg.Replication == 0 {
		cfg.Replication = 3
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 128 * 1024 * 1024 // 128MB
	}
	if cfg.Permission == "" {
		cfg.Permission = "0644"
	}
	if cfg.DirPermission == "" {
		cfg.DirPermission = "0755"
	}

	applyMetadataDefaults(&cfg.Metadata)
	applyContentDefaults(&cfg.Content)
}

// applyMetadataDefaults sets metadata store defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/fsgate-metadata"
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "/tmp/fsgate-content"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Groups: GroupsConfig{
			Type: "static",
			Static: map[string][]string{
				"supergroup": {"hdfs"},
				"admin":      {"hdfs"},
			},
		},
		ProxyUsers: map[string]proxyuser.Rule{
			"hue": {
				Hosts:  []string{"127.0.0.1"},
				Groups: []string{proxyuser.Wildcard},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
