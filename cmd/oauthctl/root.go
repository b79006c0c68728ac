package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oauthsample-go/internal/config"
	"oauthsample-go/internal/logger"
	"oauthsample-go/internal/registry"
	"oauthsample-go/internal/transport"
)

// Version information set via ldflags at build time
var Version = "dev"

type rootOptions struct {
	configPath string
	backendURL string
	adminToken string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "oauthctl",
		Short:         "Operator tooling for the OAuth sample client",
		Long:          `Lists, inspects and removes OAuth clients in the backend registry using ADMIN_JWT_TOKEN.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("oauthctl version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("CONFIG_FILE"), "path to an optional JSON config file")
	flags.StringVar(&opts.backendURL, "backend-url", "", "registry base URL (overrides BACKEND_URL)")
	flags.StringVar(&opts.adminToken, "admin-token", "", "admin bearer token (overrides ADMIN_JWT_TOKEN)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newClientsCmd(opts))
	return root
}

// adminClient builds a registry client from config plus flag overrides.
func (o *rootOptions) adminClient() (*registry.AdminClient, *zap.Logger, error) {
	cfg, err := config.LoadAdmin(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
	}
	if o.adminToken != "" {
		cfg.AdminJWTToken = o.adminToken
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	log, err := logger.New(level, cfg.Environment)
	if err != nil {
		return nil, nil, err
	}

	client := registry.NewAdminClient(cfg.BackendURL, cfg.AdminJWTToken, transport.NewClient(cfg.HTTPTimeout.Duration), log)
	return client, log, nil
}
