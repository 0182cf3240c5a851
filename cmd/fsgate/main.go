package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/fsgate/internal/logger"
	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/config"
	"github.com/marmos91/fsgate/pkg/server"
	"github.com/spf13/pflag"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

const usage = `fsgate - HTTP filesystem gateway

Usage:
  fsgate <command> [flags]

Commands:
  start        Start the gateway
  init         Write a sample configuration file
  schema       Write the JSON schema of the configuration file
  hash-token   Hash a bearer token secret for auth.tokens
  version      Print version information

Run 'fsgate <command> --help' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "start":
		err = runStart(args)
	case "init":
		err = runInit(args)
	case "schema":
		err = runSchema(args)
	case "hash-token":
		err = runHashToken(args)
	case "version", "--version", "-v":
		fmt.Printf("fsgate %s (commit %s)\n", version, commit)
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStart(args []string) error {
	flags := pflag.NewFlagSet("start", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/fsgate/config.yaml)")
	flags.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("log-format", "", "Log format (text, json)")
	flags.String("bind", "", "Address to listen on")
	flags.Int("port", 0, "Port to listen on")
	flags.String("base-url", "", "Gateway URL used in returned paths")
	flags.String("admin-group", "", "Group allowed to read instrumentation")
	flags.Bool("metrics", false, "Enable the Prometheus metrics server")
	flags.Int("metrics-port", 0, "Metrics server port")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		return err
	}

	logCloser, err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	logger.Info("fsgate %s starting", version)
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := config.InitializeRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Failed to release resources: %v", err)
		}
	}()

	srv := server.New(cfg.Server.ShutdownTimeout)
	for _, a := range rt.Adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}
	if rt.Metrics.Server != nil {
		srv.SetMetricsServer(rt.Metrics.Server)
	}

	logger.Info("Gateway is running at %s. Press Ctrl+C to stop.", cfg.Gateway.BaseURL)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runInit(args []string) error {
	flags := pflag.NewFlagSet("init", pflag.ExitOnError)
	force := flags.BoolP("force", "f", false, "Overwrite an existing config file")
	output := flags.StringP("output", "o", "", "Write to this path instead of the default location")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var (
		path string
		err  error
	)
	if *output != "" {
		path, err = config.InitConfigAt(*output, *force)
	} else {
		path, err = config.InitConfig(*force)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runSchema(args []string) error {
	flags := pflag.NewFlagSet("schema", pflag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	schema, err := config.Schema()
	if err != nil {
		return err
	}

	if flags.NArg() == 0 {
		_, err = os.Stdout.Write(append(schema, '\n'))
		return err
	}

	outputFile := flags.Arg(0)
	if err := os.WriteFile(outputFile, schema, 0644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	fmt.Printf("JSON schema written to %s\n", outputFile)
	return nil
}

func runHashToken(args []string) error {
	flags := pflag.NewFlagSet("hash-token", pflag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	secret := flags.Arg(0)
	if secret == "" {
		// Read from stdin so the secret stays out of shell history.
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read secret from stdin: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
