package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/delivery"
	"github.com/user/contentcrew/internal/gateway"
	"github.com/user/contentcrew/internal/httpapi"
	"github.com/user/contentcrew/internal/scheduler"
	"github.com/user/contentcrew/internal/state"
	"github.com/user/contentcrew/internal/telegram"
	"github.com/user/contentcrew/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides http.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, task scheduler and Telegram bot",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	// Gateway
	gw := gateway.New(a.sup, int64(cfg.MaxConcurrent))
	gw.Queue.OnDepth(a.metrics.SetQueued)
	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("contentcrew started",
		"data_dir", cfg.DataDir,
		"output_dir", cfg.OutputDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_turns", cfg.MaxTurns,
		"llm_model", cfg.LLM.Model,
		"search", cfg.Search.Provider,
		"checkpoint", cfg.Checkpoint.Backend,
		"pid_file", pidFile,
	)

	taskStore := state.NewTaskStore(filepath.Join(cfg.DataDir, "tasks.json"))

	// Delivery registry
	deliveryReg := delivery.NewRegistry()
	deliveryReg.Register("task:", logDelivery)
	deliveryReg.Register("log:", logDelivery)

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		var sessions types.SessionStore
		if a.store != nil {
			sessions = a.store
		}
		adapter, err := telegram.New(cfg.Telegram.Token, gw, sessions, cfg.Telegram.AllowedUsers)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		deliveryReg.Register("telegram:", adapter.Deliver)
		slog.Info("telegram adapter started", "allowed_users", len(cfg.Telegram.AllowedUsers))
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Scheduler
	sched := scheduler.New(taskStore, func(task state.Task) {
		runTask(ctx, gw, deliveryReg, task)
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()
	slog.Info("scheduler started", "tasks", len(sched.Scheduled()))

	// HTTP API
	opts := httpapi.Options{Tasks: taskStore, Metrics: a.metrics.Handler()}
	if a.store != nil {
		opts.Store = a.store
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewServer(gw, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server started", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := sched.Reload(); err != nil {
					slog.Error("reload tasks", "error", err)
					continue
				}
				slog.Info("tasks reloaded", "scheduled", len(sched.Scheduled()))
				continue
			}
			slog.Info("shutting down", "signal", sig)
			return nil
		}
	}
}

// runTask runs a stored task through the gateway and delivers the outcome to
// the task's session key.
func runTask(ctx context.Context, gw *gateway.Gateway, reg *delivery.Registry, task state.Task) {
	key := task.SessionKey
	if key == "" {
		key = "task:" + task.Name
	}
	outcome, err := gw.Generate(ctx, &types.InboundEvent{
		Source:     "task",
		SessionKey: types.SessionKey(key),
		UserID:     "system",
		Text:       task.Prompt(),
	})
	if outcome == nil {
		slog.Error("task failed", "task", task.Name, "session_key", key, "error", err)
		return
	}
	if err := reg.Deliver(ctx, key, outcome); err != nil {
		slog.Error("task delivery failed", "task", task.Name, "session_key", key, "error", err)
	}
}

func logDelivery(_ context.Context, sessionKey string, o *types.Outcome) error {
	slog.Info("task finished",
		"session_key", sessionKey,
		"session_id", string(o.SessionID),
		"status", string(o.Status),
		"output_path", o.OutputPath,
	)
	return nil
}
