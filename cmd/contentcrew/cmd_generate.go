package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/render"
	"github.com/user/contentcrew/internal/supervisor"
	"github.com/user/contentcrew/internal/types"
)

// cliSessionKey groups sessions started from the terminal.
const cliSessionKey types.SessionKey = "cli"

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolP("interactive", "i", false, "read one request per line from stdin")
}

var generateCmd = &cobra.Command{
	Use:   "generate [request...]",
	Short: "Research a topic and write content about it",
	Example: `  contentcrew generate "Write a LinkedIn post about Go 1.25"
  contentcrew generate -i`,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	interactive, _ := cmd.Flags().GetBool("interactive")
	request := strings.TrimSpace(strings.Join(args, " "))
	if !interactive && request == "" {
		return errors.New("a request is required, e.g. contentcrew generate \"Write a post about Go\"")
	}

	cfg := loadConfig()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := render.New(os.Stdout)
	if interactive {
		return runInteractive(ctx, a.sup, out, os.Stdin, os.Stdout)
	}
	return runOnce(ctx, a.sup, out, request)
}

// sessionRunner is the part of the supervisor the CLI drives.
type sessionRunner interface {
	Run(ctx context.Context, key types.SessionKey, request string) (*supervisor.Result, error)
}

func runOnce(ctx context.Context, sup sessionRunner, out *render.Renderer, request string) error {
	res, err := sup.Run(ctx, cliSessionKey, request)
	if res == nil {
		return err
	}
	if err := out.Outcome(&res.Outcome); err != nil {
		return err
	}
	return outcomeError(&res.Outcome)
}

// runInteractive runs one session per input line until EOF or "exit".
// Failed sessions are reported and the loop carries on.
func runInteractive(ctx context.Context, sup sessionRunner, out *render.Renderer, in io.Reader, prompt io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(prompt, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(prompt)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := runOnce(ctx, sup, out, line); err != nil {
			if exitCode(err) == 1 {
				out.Error(err.Error())
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
