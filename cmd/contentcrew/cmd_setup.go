package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		fmt.Println("ContentCrew Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		runWizard(bufio.NewScanner(os.Stdin), os.Stdout, cfg)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if err := cfg.Validate(); err != nil {
			fmt.Println("Still missing:", err)
		}
		return nil
	},
}

// runWizard asks for each setting in turn and updates cfg in place.
func runWizard(scanner *bufio.Scanner, out io.Writer, cfg *config.Config) {
	cfg.LLM.BaseURL = prompt(scanner, out, "LLM base URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = prompt(scanner, out, "LLM API key", cfg.LLM.APIKey)
	cfg.LLM.Model = prompt(scanner, out, "LLM model name", cfg.LLM.Model)

	for {
		p := prompt(scanner, out, "Search provider (tavily or brave)", cfg.Search.Provider)
		if p == "tavily" || p == "brave" {
			cfg.Search.Provider = p
			break
		}
		fmt.Fprintln(out, "Please enter tavily or brave.")
	}
	cfg.Tavily.APIKey = prompt(scanner, out, "Tavily API key", cfg.Tavily.APIKey)
	cfg.Brave.APIKey = prompt(scanner, out, "Brave API key (optional)", cfg.Brave.APIKey)

	cfg.OutputDir = prompt(scanner, out, "Output directory", cfg.OutputDir)
	maxTurns := prompt(scanner, out, "Max routing decisions per session", strconv.Itoa(cfg.MaxTurns))
	if n, err := strconv.Atoi(maxTurns); err == nil && n > 0 {
		cfg.MaxTurns = n
	}

	cfg.Telegram.Token = prompt(scanner, out, "Telegram bot token (optional)", cfg.Telegram.Token)
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, or input ends, the default is returned.
func prompt(scanner *bufio.Scanner, out io.Writer, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
