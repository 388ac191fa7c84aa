package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/scheduler"
	"github.com/user/contentcrew/internal/state"
)

const pidFileName = "contentcrew.pid"

func init() {
	rootCmd.AddCommand(stopCmd, reloadCmd)
	stopCmd.Flags().Duration("wait", 15*time.Second, "how long to wait for in-flight sessions to drain (0 to return at once)")
	reloadCmd.Flags().Bool("dry-run", false, "print what would be scheduled without signalling the server")
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}

// serverProcess returns the serve process recorded under dataDir, or an
// error when none is alive.
func serverProcess(dataDir string) (*os.Process, error) {
	path := pidPath(dataDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.New("contentcrew serve is not running (no PID file)")
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("corrupt PID file %s", path)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("contentcrew serve is not running (stale PID %d)", pid)
	}
	return proc, nil
}

// waitForExit polls proc until it is gone or timeout passes.
func waitForExit(proc *os.Process, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if proc.Signal(syscall.Signal(0)) != nil {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return proc.Signal(syscall.Signal(0)) != nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server after in-flight sessions finish",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")
		proc, err := serverProcess(loadConfig().DataDir)
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM: %w", err)
		}
		if wait <= 0 {
			fmt.Fprintf(os.Stdout, "Asked server (PID %d) to stop.\n", proc.Pid)
			return nil
		}
		if !waitForExit(proc, wait) {
			return fmt.Errorf("server (PID %d) still running after %s; sessions may still be finishing", proc.Pid, wait)
		}
		fmt.Fprintf(os.Stdout, "Server (PID %d) stopped.\n", proc.Pid)
		return nil
	},
}

type plannedTask struct {
	Name string
	Next time.Time
}

// reloadPlan is what the scheduler registers from the task store.
type reloadPlan struct {
	Scheduled   []plannedTask
	WebhookOnly int
	Disabled    int
	Invalid     []string
}

func planReload(store *state.TaskStore, now time.Time) (*reloadPlan, error) {
	tasks, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	plan := &reloadPlan{}
	for _, t := range tasks {
		switch {
		case !t.Enabled:
			plan.Disabled++
		case t.Schedule == "":
			plan.WebhookOnly++
		default:
			next, err := scheduler.Next(t.Schedule, now)
			if err != nil {
				plan.Invalid = append(plan.Invalid, t.Name)
				continue
			}
			plan.Scheduled = append(plan.Scheduled, plannedTask{Name: t.Name, Next: next})
		}
	}
	sort.Slice(plan.Scheduled, func(i, j int) bool {
		return plan.Scheduled[i].Next.Before(plan.Scheduled[j].Next)
	})
	return plan, nil
}

func printReloadPlan(w io.Writer, plan *reloadPlan) {
	fmt.Fprintf(w, "%d scheduled, %d webhook only, %d disabled\n", len(plan.Scheduled), plan.WebhookOnly, plan.Disabled)
	for _, t := range plan.Scheduled {
		fmt.Fprintf(w, "  %-20s next %s\n", t.Name, t.Next.Format(time.RFC3339))
	}
	for _, name := range plan.Invalid {
		fmt.Fprintf(w, "  %-20s skipped: invalid schedule\n", name)
	}
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the running server reload its scheduled tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		plan, err := planReload(taskStore(), time.Now())
		if err != nil {
			return err
		}
		printReloadPlan(os.Stdout, plan)
		if dryRun {
			return nil
		}

		proc, err := serverProcess(loadConfig().DataDir)
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGHUP); err != nil {
			return fmt.Errorf("send SIGHUP: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Server (PID %d) is reloading.\n", proc.Pid)
		return nil
	},
}
