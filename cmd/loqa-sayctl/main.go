package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:           "loqa-sayctl",
	Short:         "Control a running loqa-say daemon",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `loqa-sayctl sends commands to a running loqa-say daemon over its
message bus and reads devices, voices and history from its HTTP API.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "loqa-say.yaml", "Configuration file path")
	rootCmd.PersistentFlags().Duration("timeout", 3*time.Second, "Request timeout")
}

// loadConfig reads the shared daemon configuration. A missing default file
// yields the defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Load("")
	}
	return cfg, err
}

func requestTimeout(cmd *cobra.Command) time.Duration {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		return 3 * time.Second
	}
	return timeout
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
