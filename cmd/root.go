package cmd

import (
	"context"

	"github.com/spf13/cobra"

	logx "github.com/lessonforge/server/pkg/logger"
	"github.com/lessonforge/server/pkg/tracing"
)

var (
	envFile  string
	logLevel string

	appConfig *AppConfig
	shutdown  func(context.Context) error
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lessonforge",
		Short:         "Generate narrated lesson videos from course outlines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})

			shutdown, err = tracing.Init(cmd.Context(), cfg.Tracing, cfg.Environment)
			if err != nil {
				return err
			}
			appConfig = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(context.WithoutCancel(cmd.Context()))
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (trace, debug, info, warn, error)")

	rootCmd.AddCommand(GetGenerateCommand())
	rootCmd.AddCommand(GetSummarizeCommand())
	rootCmd.AddCommand(GetCatalogCommand())
	return rootCmd
}

// Execute runs the root command and logs its failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("command failed")
	}
	return err
}
