package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/fsgate/internal/logger"
	"github.com/marmos91/fsgate/pkg/adapter"
	"github.com/marmos91/fsgate/pkg/backend/storefs"
	"github.com/marmos91/fsgate/pkg/gateway"
	"github.com/marmos91/fsgate/pkg/groups"
)

// Runtime holds every component built from a configuration.
//
// Close releases the stores and the audit output in reverse creation order.
type Runtime struct {
	Config    *Config
	Metrics   *MetricsResult
	Connector *storefs.Connector
	Gateway   *gateway.Gateway
	Adapters  []adapter.Adapter

	closers []io.Closer
}

// InitializeRuntime creates a fully configured Runtime from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the metrics registry and collectors
//  2. Creates the metadata and content stores
//  3. Creates the group resolver and the backend connector
//  4. Creates the authenticator, impersonation policy and audit sink
//  5. Creates the gateway and the adapters serving it
//
// On error every component created so far is closed.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml", nil)
//	rt, err := config.InitializeRuntime(ctx, cfg)
//	if err != nil {
//	    log.Fatalf("Failed to initialize: %v", err)
//	}
//	defer rt.Close()
func InitializeRuntime(ctx context.Context, cfg *Config) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	// Step 1: Metrics
	rt.Metrics = InitializeMetrics(cfg)

	// Step 2: Stores
	meta, err := CreateMetadataStore(ctx, &cfg.Backend.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}
	rt.closers = append(rt.closers, meta)
	logger.Debug("Metadata store ready: type=%s", cfg.Backend.Metadata.Type)

	blobs, err := CreateContentStore(ctx, &cfg.Backend.Content, rt.Metrics.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create content store: %w", err)
	}
	rt.closers = append(rt.closers, blobs)
	logger.Debug("Content store ready: type=%s", cfg.Backend.Content.Type)

	// Step 3: Backend
	resolver, err := CreateGroupResolver(&cfg.Groups)
	if err != nil {
		return nil, err
	}

	rt.Connector, err = CreateConnector(ctx, &cfg.Backend, meta, blobs, resolver)
	if err != nil {
		return nil, err
	}
	conn := rt.Connector
	rt.Metrics.Registry.RegisterGaugeFunc("backend_active_sessions", "Backend sessions currently open.", func() float64 {
		return float64(conn.ActiveSessions())
	})

	// Step 4: Identity and audit
	authn, err := CreateAuthenticator(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	policy, err := CreateProxyPolicy(cfg.ProxyUsers, resolver)
	if err != nil {
		return nil, err
	}

	sink, auditCloser, err := CreateAuditSink(&cfg.Audit)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, auditCloser)

	// Step 5: Gateway and adapters
	rt.Gateway, err = gateway.New(gateway.Options{
		Config: gateway.Config{
			BaseURL:     cfg.Gateway.BaseURL,
			AdminGroup:  cfg.Gateway.AdminGroup,
			BufferSize:  cfg.Gateway.BufferSize,
			Compression: cfg.Gateway.Compression,
		},
		Authenticator: authn,
		Connector:     rt.Connector,
		Policy:        policy,
		Admins:        groups.NewMembership(resolver),
		Snapshots:     rt.Metrics.Snapshots,
		Audit:         sink,
		Metrics:       rt.Metrics.Gateway,
	})
	if err != nil {
		return nil, err
	}

	rt.Adapters, err = CreateAdapters(cfg, rt.Gateway)
	if err != nil {
		return nil, err
	}

	logger.Info("Gateway initialized: auth=%s groups=%s metadata=%s content=%s proxyusers=%d",
		authn.Scheme(), cfg.Groups.Type, cfg.Backend.Metadata.Type, cfg.Backend.Content.Type, len(cfg.ProxyUsers))

	return rt, nil
}

// Close releases the resources held by the runtime.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
