// Package main is the entrypoint for the Dinex point-of-sale terminal CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/DelfimCelestino/dinex/internal/config"
	"github.com/DelfimCelestino/dinex/internal/terminal"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dinex-terminal",
		Short: "Dinex point-of-sale terminal",
		Long: `Dinex Terminal runs the license side of a point-of-sale terminal.

Run 'dinex-terminal activate --key <license-key>' once, then 'dinex-terminal run'
to keep the terminal licensed.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newActivateCmd(),
		newRunCmd(),
		newStatusCmd(),
		newClearCmd(),
	)

	return rootCmd
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func newSession(logger zerolog.Logger) (*terminal.Session, config.TerminalConfig, error) {
	cfg := config.LoadTerminalConfig()

	cache, err := terminal.NewCache(cfg.DataDir, logger)
	if err != nil {
		return nil, cfg, fmt.Errorf("open license cache: %w", err)
	}

	client := terminal.NewClient(cfg.ServerURL)
	session := terminal.NewSession(cache, client, cfg.CheckInterval, cfg.SweepInterval, logger)
	return session, cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Dinex Terminal %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newActivateCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate this terminal with a license key",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			session, cfg, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := session.Activate(ctx, key)
			if err != nil {
				return fmt.Errorf("reach license server at %s: %w", cfg.ServerURL, err)
			}

			if !result.Valid {
				fmt.Printf("Activation rejected: %s\n", result.Message)
				return nil
			}

			fmt.Printf("License activated for %s\n", result.License.ClientName)
			fmt.Printf("  Expires: %s (%d days remaining)\n",
				result.License.ExpiresAt.Format("2006-01-02"),
				result.License.DaysRemaining(time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "license key (required)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the terminal with periodic license re-validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			session, cfg, err := newSession(logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = session.Restore(ctx)
			cancel()
			if err != nil {
				session.Close()
				return err
			}

			if !session.Valid() {
				session.Close()
				return fmt.Errorf("no valid license; run 'dinex-terminal activate --key <license-key>' first")
			}

			session.OnInvalid(func(message string) {
				logger.Error().Str("reason", message).Msg("license no longer valid, terminal is locked")
			})

			session.Start()
			logger.Info().
				Str("server", cfg.ServerURL).
				Dur("check_interval", cfg.CheckInterval).
				Msg("terminal running")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			logger.Info().Msg("shutting down terminal")
			return session.Close()
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached license status",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.Nop()
			session, _, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := session.Restore(ctx); err != nil {
				return err
			}

			lic := session.License()
			if lic == nil {
				fmt.Println("No license cached. Run 'dinex-terminal activate' first.")
				return nil
			}

			fmt.Printf("Client:   %s\n", lic.ClientName)
			fmt.Printf("Machine:  %s\n", lic.MachineName)
			fmt.Printf("Expires:  %s (%d days remaining)\n", lic.ExpiresAt.Format("2006-01-02"), lic.DaysRemaining(time.Now()))
			if session.Valid() {
				fmt.Println("Status:   valid")
			} else {
				fmt.Println("Status:   INVALID")
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached license from this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := newSession(zerolog.Nop())
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Println("License cache cleared.")
			return nil
		},
	}
}
