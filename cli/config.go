package cli

import (
	"context"
	"fmt"

	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/compozy/vachanamrut/pkg/logger"
	"github.com/spf13/cobra"
)

// SetupGlobalConfig loads the env file, resolves configuration from YAML, CLI
// flags and the environment, and stores both config and logger on the
// command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	envFile, err := loadEnvFile(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	_, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg.Runtime.LogLevel, logJSON, logSource)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	log.Debug("Configuration loaded", "env_file", envFile, "environment", cfg.Runtime.Environment)
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cliFlags := make(map[string]any)
	extractCLIFlags(cmd, cliFlags)
	sources := []config.Source{config.NewCLIProvider(cliFlags)}
	if configFile != "" {
		sources = append([]config.Source{config.NewYAMLProvider(configFile)}, sources...)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.NewService().Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
