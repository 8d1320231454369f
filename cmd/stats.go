package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print memory system statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		system, err := buildComponents()

		if err != nil {
			return err
		}

		if err := system.manager.Initialize(cmd.Context()); err != nil {
			return err
		}

		defer system.manager.Close()

		stats := system.manager.SystemStats(cmd.Context())

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
