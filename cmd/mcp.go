package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/studyforge/studyforge/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing
document question answering and search tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "studyforge MCP server started on stdio (data=%s)\n", st.cfg.DataDir)

		srv := mcpserver.NewServer(st.svc)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
