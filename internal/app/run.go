package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/config"
)

// Run is the main entry point for the command. Without -app it checks the
// configuration and the token store and exits. With -app it performs one
// authenticated call and prints the response.
func Run(args []string) error {
	// Load environment variables
	_ = godotenv.Load()

	flags := flag.NewFlagSet("oauth2-client", flag.ContinueOnError)
	var probe ProbeRequest
	flags.StringVar(&probe.Application, "app", "", "Application to call")
	flags.StringVar(&probe.Method, "method", "GET", "HTTP method")
	flags.StringVar(&probe.Path, "path", "", "Path relative to the application's service host")
	flags.StringVar(&probe.Data, "data", "", "JSON request body")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.InitGlobalLogger(cfg.LogLevel, logging.RotationConfig{
		Filename:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	}); err != nil {
		return err
	}
	defer logging.MustSync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	if err := app.Health(ctx); err != nil {
		logging.Error("Token store health check failed", err)
		return err
	}

	if probe.Application == "" {
		logging.Info("Configuration and token store OK",
			logging.String("store", cfg.StoreType),
		)
		return nil
	}

	if err := app.Probe(ctx, probe, os.Stdout); err != nil {
		logging.Error("Probe failed", err, logging.String("application", probe.Application))
		return err
	}
	return nil
}
