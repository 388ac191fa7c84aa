package main

import (
	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/gateway"
	"github.com/user/contentcrew/internal/mcpserver"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve generate_content over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		// stdout carries the protocol; logs stay on stderr
		setupLogging(cfg)

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		gw := gateway.New(a.sup, int64(cfg.MaxConcurrent))
		gw.Start(ctx)
		defer gw.Stop()

		return mcpserver.NewServer(gw, version).ServeStdio()
	},
}
