package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/config"
	"github.com/user/contentcrew/internal/types"
)

var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "contentcrew",
	Short:         "Research a topic and write a post or blog article about it",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// loadConfig loads the config file, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the default slog logger on stderr.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	})))
}

// exitError carries a process exit code. A nil err means the reason was
// already shown to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// statusExitCode maps a session outcome to the exit code of generate:
// 2 routing, 3 research, 4 generation, 5 truncated without content.
func statusExitCode(o *types.Outcome) int {
	switch o.Status {
	case types.StatusRoutingFailed:
		return 2
	case types.StatusRetrievalFailed:
		return 3
	case types.StatusGenerationFailed:
		return 4
	case types.StatusTruncated:
		if o.Empty {
			return 5
		}
	}
	return 0
}

// outcomeError turns a failed outcome into an exitError.
func outcomeError(o *types.Outcome) error {
	if code := statusExitCode(o); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
