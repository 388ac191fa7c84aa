package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/render"
	"github.com/user/contentcrew/internal/types"
)

func init() {
	rootCmd.AddCommand(resumeCmd)
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Continue a checkpointed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		if cfg.Checkpoint.Backend == "none" {
			return errors.New("checkpointing is disabled (checkpoint.backend = none)")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sup.Resume(ctx, types.SessionID(args[0]))
		if res == nil {
			return err
		}
		if err := render.New(os.Stdout).Outcome(&res.Outcome); err != nil {
			return err
		}
		return outcomeError(&res.Outcome)
	},
}
