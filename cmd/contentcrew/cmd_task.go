package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/scheduler"
	"github.com/user/contentcrew/internal/state"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskRemoveCmd, taskEnableCmd, taskDisableCmd)

	taskAddCmd.Flags().String("name", "", "task name (required)")
	taskAddCmd.Flags().String("request", "", "content request (required)")
	taskAddCmd.Flags().String("format", "", "format hint: post or blog")
	taskAddCmd.Flags().String("schedule", "", "cron schedule expression")
	taskAddCmd.Flags().String("session-key", "", "session key used for delivery, e.g. telegram:<user>:<chat>")
	_ = taskAddCmd.MarkFlagRequired("name")
	_ = taskAddCmd.MarkFlagRequired("request")
}

func taskStore() *state.TaskStore {
	cfg := loadConfig()
	return state.NewTaskStore(filepath.Join(cfg.DataDir, "tasks.json"))
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled and webhook tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		request, _ := cmd.Flags().GetString("request")
		format, _ := cmd.Flags().GetString("format")
		schedule, _ := cmd.Flags().GetString("schedule")
		sessionKey, _ := cmd.Flags().GetString("session-key")

		if format != "" && format != "post" && format != "blog" {
			return fmt.Errorf("format must be post or blog, got %q", format)
		}
		if schedule != "" {
			if err := scheduler.Validate(schedule); err != nil {
				return err
			}
		}

		task := &state.Task{
			Name:       name,
			Request:    request,
			Format:     format,
			Schedule:   schedule,
			SessionKey: sessionKey,
			Enabled:    true,
		}
		if err := taskStore().Add(task); err != nil {
			return fmt.Errorf("add task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q added.\n", name)
		if schedule != "" {
			if next, err := scheduler.Next(schedule, time.Now()); err == nil {
				fmt.Fprintf(os.Stdout, "Next run: %s\n", next.Format("2006-01-02 15:04"))
			}
		}
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := taskStore().List()
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tFORMAT\tENABLED\tSESSION KEY")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
				t.Name,
				t.Schedule,
				t.Format,
				t.Enabled,
				t.SessionKey,
			)
		}
		return w.Flush()
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := taskStore().Remove(args[0]); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q removed.\n", args[0])
		return nil
	},
}

var taskEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], true)
	},
}

var taskDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], false)
	},
}

func setTaskEnabled(name string, enabled bool) error {
	verb := "enabled"
	if !enabled {
		verb = "disabled"
	}
	if err := taskStore().SetEnabled(name, enabled); err != nil {
		return fmt.Errorf("set task %s: %w", verb, err)
	}
	fmt.Fprintf(os.Stdout, "Task %q %s.\n", name, verb)
	return nil
}
