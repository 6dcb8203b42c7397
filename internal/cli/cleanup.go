package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backups past the retention window",
	Long:  "Run one retention sweep across all configured storage backends (typically used by cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices()
		if err != nil {
			return err
		}
		defer services.Close()

		services.BackupService.RunRetentionSweep(cmd.Context())
		fmt.Printf("Retention sweep completed (retention: %d days)\n", cfg.RetentionDays)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
