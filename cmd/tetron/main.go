// tetron drives a falling-block puzzle solver.
//
// Usage:
//
//	tetron bot               - Serve the command boundary on NATS
//	tetron stdio             - Serve the command boundary on stdin/stdout
//	tetron shell [command]   - Interactive shell, or run one shell command
//	tetron solve <file>      - Solve one JSON snapshot and print the keys
//	tetron bench             - Benchmark the engine on generated positions
//
// Every setting can also come from a TETRON_* environment variable or a
// YAML file named with --config.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/domino14/tetron/config"
)

var (
	GitVersion string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:               "tetron",
	Short:             "Drive a falling-block puzzle solver",
	Version:           GitVersion,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(botCmd, stdioCmd, shellCmd, solveCmd, benchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	v, err := config.New(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err = config.FromViper(v)
	if err != nil {
		return err
	}
	setupLogging(cfg.Debug)
	log.Debug().Interface("config", cfg).Msg("loaded-config")
	return nil
}

// setupLogging writes to stderr; stdout belongs to the stdio transport.
func setupLogging(debug bool) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	logger.Debug().Msg("Debug logging is on")
}
