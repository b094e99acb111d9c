package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shelfdb/shelf/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose a running shelf server as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		return mcpserver.ServeStdio(mcpserver.New(c))
	},
}
