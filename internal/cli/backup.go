package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/core/service"
	"github.com/dbferry/dbferry/internal/storage"
)

var (
	backupTenantID string
	backupTables   []string
	backupFormat   string
	backupCompress bool
	backupBackend  string
	backupSchema   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and manage backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup and wait for it to finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices()
		if err != nil {
			return err
		}
		defer services.Close()

		services.BackupService.Start(cmd.Context())

		var tenantPtr *string
		if backupTenantID != "" {
			tenantPtr = &backupTenantID
		}

		events, unsubscribe := services.BackupService.Subscribe()
		defer unsubscribe()

		job, err := services.BackupService.CreateBackup(service.CreateBackupOptions{
			TenantID:      tenantPtr,
			Tables:        backupTables,
			Format:        backupFormat,
			Compress:      backupCompress,
			Backend:       backupBackend,
			IncludeSchema: backupSchema,
		})
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}

		fmt.Printf("Backup started\n")
		fmt.Printf("Backup ID: %s\n", job.ID)
		fmt.Printf("Tables: %s\n", strings.Join(job.Tables, ", "))

		for event := range events {
			if event.JobID != job.ID {
				continue
			}
			switch event.Type {
			case domain.EventProgress:
				fmt.Printf("  %s: %.0f%%\n", event.Table, event.Fraction*100)
			case domain.EventCompleted:
				final, err := services.BackupService.GetBackupStatus(job.ID)
				if err != nil {
					return err
				}
				fmt.Printf("Backup completed: %s\n", final.Location)
				return nil
			case domain.EventFailed:
				return fmt.Errorf("backup failed: %s", event.Error)
			}
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices()
		if err != nil {
			return err
		}
		defer services.Close()

		objects, err := services.BackupService.ListBackups(cmd.Context(), backupBackend)
		if err != nil {
			return err
		}

		if len(objects) == 0 {
			fmt.Printf("No backups on backend %s\n", backupBackend)
			return nil
		}
		for _, obj := range objects {
			fmt.Printf("%s\t%d bytes\n", obj.ID, obj.Size)
		}
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices()
		if err != nil {
			return err
		}
		defer services.Close()

		if err := services.BackupService.DeleteBackup(cmd.Context(), args[0], backupBackend); err != nil {
			return err
		}
		fmt.Printf("Backup %s deleted\n", args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore tables from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices()
		if err != nil {
			return err
		}
		defer services.Close()

		counts, err := services.BackupService.RestoreBackup(cmd.Context(), args[0], service.RestoreOptions{
			Backend: backupBackend,
			Tables:  backupTables,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		for table, count := range counts {
			fmt.Printf("%s: %d rows restored\n", table, count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupDeleteCmd)

	backupCreateCmd.Flags().StringVar(&backupTenantID, "tenant", "", "Tenant ID (default: all tenants)")
	backupCreateCmd.Flags().StringSliceVar(&backupTables, "tables", nil, "Tables to back up")
	backupCreateCmd.Flags().StringVar(&backupFormat, "format", "", "Chunk file format")
	backupCreateCmd.Flags().BoolVar(&backupCompress, "compress", false, "Bundle the backup into a tar.gz archive")
	backupCreateCmd.Flags().StringVar(&backupBackend, "backend", storage.LocalName, "Storage backend")
	backupCreateCmd.Flags().BoolVar(&backupSchema, "include-schema", false, "Export table schema descriptors")

	backupListCmd.Flags().StringVar(&backupBackend, "backend", storage.LocalName, "Storage backend")
	backupDeleteCmd.Flags().StringVar(&backupBackend, "backend", storage.LocalName, "Storage backend")

	restoreCmd.Flags().StringVar(&backupBackend, "backend", storage.LocalName, "Storage backend")
	restoreCmd.Flags().StringSliceVar(&backupTables, "tables", nil, "Tables to restore (default: all tables in the backup)")
}
