package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	flagHost   string
	flagPort   int
	flagConfig string
	quiet      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "Server host (default $AP_HOST or 0.0.0.0; client commands default to localhost)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "Server port (default $AP_PORT or 9999)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Database file path (default $AP_CNFG or ~/.db.json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress per-query logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(popCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(editCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shelf version %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

var rootCmd = &cobra.Command{
	Use:     "shelf",
	Short:   "Shelf: a networked, schema-less, JSON-shaped key/value store",
	Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
