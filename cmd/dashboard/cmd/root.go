package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/config"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	envFile    string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:           "dashboard",
	Short:         "Realtime statistics client for the course admin dashboard",
	Long:          "Keeps a websocket connection to the realtime server alive and folds its events into activity and monitor views.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./dashboard.{yaml,json,toml} if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", "", "identity announced to the realtime server (default from config, else anonymous)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

// setup loads configuration and builds the logger every subcommand uses.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
