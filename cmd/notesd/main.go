package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	notes "github.com/i5heu/ouroboros-notes"
	"github.com/i5heu/ouroboros-notes/pkg/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "notesd",
	Short: "notesd - encrypted notes behind deliberately weak RSA keys",
	Long: `notesd hands out RSA keys whose private exponent is small enough for
Wiener's attack, stores notes encrypted under them and decrypts them again
for whoever presents the token.

Available Commands:
  serve      Run the HTTP service
  keygen     Generate keys locally and print their tokens
  backup     Dump the badger store to a file
  restore    Load a dump into the badger store
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the config file and flags and attaches a logger.
func loadConfig() (notes.Config, error) {
	conf, err := notes.LoadConfig(configPath)
	if err != nil {
		return notes.Config{}, err
	}
	if logLevel != "" {
		conf.Log.Level = logLevel
	}

	logger, err := logging.New(conf.Log.Level, conf.Log.Format)
	if err != nil {
		return notes.Config{}, err
	}
	conf.Logger = logger
	return conf, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
