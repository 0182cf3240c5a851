package config

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marmos91/fsgate/pkg/audit"
	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/proxyuser"
)

func TestCreateMetadataStore_Memory(t *testing.T) {
	store, err := CreateMetadataStore(context.Background(), &MetadataConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory metadata store: %v", err)
	}
	defer func() { _ = store.Close() }()
}

func TestCreateMetadataStore_Badger(t *testing.T) {
	cfg := &MetadataConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": t.TempDir()},
	}

	store, err := CreateMetadataStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create badger metadata store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCreateMetadataStore_BadgerMissingPath(t *testing.T) {
	cfg := &MetadataConfig{Type: "badger", Badger: map[string]any{}}

	_, err := CreateMetadataStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing db_path")
	}
	if !strings.Contains(err.Error(), "db_path is required") {
		t.Errorf("Expected 'db_path is required' error, got: %v", err)
	}
}

func TestCreateMetadataStore_Unknown(t *testing.T) {
	if _, err := CreateMetadataStore(context.Background(), &MetadataConfig{Type: "postgres"}); err == nil {
		t.Fatal("Expected error for unknown metadata store type")
	}
}

func TestCreateContentStore_Filesystem(t *testing.T) {
	cfg := &ContentConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": t.TempDir()},
	}

	store, err := CreateContentStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create filesystem content store: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}
}

func TestCreateContentStore_FilesystemMissingPath(t *testing.T) {
	cfg := &ContentConfig{Type: "filesystem", Filesystem: map[string]any{}}

	_, err := CreateContentStore(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateContentStore_Memory(t *testing.T) {
	store, err := CreateContentStore(context.Background(), &ContentConfig{Type: "memory"}, nil)
	if err != nil {
		t.Fatalf("Failed to create memory content store: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}
}

func TestDecodeS3Options(t *testing.T) {
	opts, err := decodeS3Options(map[string]any{
		"region":    "us-east-1",
		"bucket":    "fsgate",
		"endpoint":  "http://localhost:4566",
		"part_size": 8 * 1024 * 1024,
		"timeout":   "5s",
	})
	if err != nil {
		t.Fatalf("decodeS3Options failed: %v", err)
	}
	if opts.MaxRetries != 10 {
		t.Errorf("Expected default max retries 10, got %d", opts.MaxRetries)
	}
	if opts.Timeout.Seconds() != 5 {
		t.Errorf("Expected 5s timeout, got %v", opts.Timeout)
	}
	if opts.PartSize != 8*1024*1024 {
		t.Errorf("Unexpected part size %d", opts.PartSize)
	}
}

func TestDecodeS3Options_Required(t *testing.T) {
	if _, err := decodeS3Options(map[string]any{"region": "us-east-1"}); err == nil || !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required', got: %v", err)
	}
	if _, err := decodeS3Options(map[string]any{"bucket": "b"}); err == nil || !strings.Contains(err.Error(), "region is required") {
		t.Errorf("Expected 'region is required', got: %v", err)
	}
}

func TestCreateAuthenticator(t *testing.T) {
	authn, err := CreateAuthenticator(&AuthConfig{Type: "pseudo"})
	if err != nil {
		t.Fatalf("Failed to create pseudo authenticator: %v", err)
	}
	if authn.Scheme() != "pseudo" {
		t.Errorf("Expected pseudo scheme, got %q", authn.Scheme())
	}

	hash, err := auth.HashSecret("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	authn, err = CreateAuthenticator(&AuthConfig{Type: "token", Tokens: map[string]string{"alice": hash}})
	if err != nil {
		t.Fatalf("Failed to create token authenticator: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer alice:s3cret")
	user, err := authn.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user != "alice" {
		t.Errorf("Expected alice, got %q", user)
	}
}

func TestCreateAuthenticator_Unknown(t *testing.T) {
	if _, err := CreateAuthenticator(&AuthConfig{Type: "kerberos"}); err == nil {
		t.Fatal("Expected error for unknown auth type")
	}
}

func TestCreateGroupResolver(t *testing.T) {
	resolver, err := CreateGroupResolver(&GroupsConfig{
		Type:   "static",
		Static: map[string][]string{"staff": {"alice"}},
	})
	if err != nil {
		t.Fatalf("Failed to create static resolver: %v", err)
	}
	groups, err := resolver.Groups(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0] != "staff" {
		t.Errorf("Expected [staff], got %v", groups)
	}

	if _, err := CreateGroupResolver(&GroupsConfig{Type: "unix"}); err != nil {
		t.Errorf("Failed to create unix resolver: %v", err)
	}
	if _, err := CreateGroupResolver(&GroupsConfig{Type: "ldap"}); err == nil {
		t.Error("Expected error for unknown groups type")
	}
}

func TestCreateProxyPolicy_InvalidHost(t *testing.T) {
	_, err := CreateProxyPolicy(map[string]proxyuser.Rule{
		"hue": {Hosts: []string{"10.0.0.0/99"}, Users: []string{"alice"}},
	}, nil)
	if err == nil {
		t.Fatal("Expected error for malformed CIDR")
	}
}

func TestCreateAuditSink(t *testing.T) {
	sink, closer, err := CreateAuditSink(&AuditConfig{Output: "none"})
	if err != nil {
		t.Fatalf("CreateAuditSink(none) failed: %v", err)
	}
	if _, ok := sink.(audit.Discard); !ok {
		t.Errorf("Expected audit.Discard, got %T", sink)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	path := t.TempDir() + "/audit.log"
	sink, closer, err = CreateAuditSink(&AuditConfig{Output: path})
	if err != nil {
		t.Fatalf("CreateAuditSink(file) failed: %v", err)
	}
	sink.Impersonation(context.Background(), "req-1", "hue", "127.0.0.1", "alice")
	if err := closer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCreateConnector(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()

	meta, err := CreateMetadataStore(ctx, &cfg.Backend.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := CreateContentStore(ctx, &cfg.Backend.Content, nil)
	if err != nil {
		t.Fatal(err)
	}
	resolver, err := CreateGroupResolver(&cfg.Groups)
	if err != nil {
		t.Fatal(err)
	}

	conn, err := CreateConnector(ctx, &cfg.Backend, meta, blobs, resolver)
	if err != nil {
		t.Fatalf("CreateConnector failed: %v", err)
	}

	session, err := conn.Connect(ctx, "hdfs")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() { _ = session.Close() }()

	defaults := session.Defaults()
	if defaults.Replication != 3 || defaults.Permission.String() != "-rw-r--r--" {
		t.Errorf("Unexpected defaults: %+v", defaults)
	}

	cfg.Backend.DirPermission = "bogus"
	if _, err := CreateConnector(ctx, &cfg.Backend, meta, blobs, resolver); err == nil {
		t.Errorf("Expected error for dir_permission %q", "bogus")
	}
}
