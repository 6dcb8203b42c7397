package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dbferry/dbferry/internal/core/service"
	"github.com/dbferry/dbferry/internal/db"
	"github.com/dbferry/dbferry/internal/ratelimit"
	"github.com/dbferry/dbferry/internal/storage"
	"github.com/dbferry/dbferry/pkg/config"
	"github.com/dbferry/dbferry/pkg/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dbferry",
	Short: "dbferry - tenant-scoped database backup and export",
	Long: `dbferry moves relational data in and out of multi-tenant databases.

It provides:
- Chunked table backups with manifests and point-in-time restore
- Tenant-scoped exports in json, csv, ndjson, xml and sql formats
- Streaming exports with bounded memory
- Local, S3, GCS and Azure Blob storage backends
- Retention sweeps and per-tenant rate limiting
- REST API for remote management`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/dbferry/config.yml)")
}

// initServices initializes all services
func initServices() (*Services, error) {
	logger := logging.New(cfg)

	database, err := db.New(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	backends := storage.NewRegistry(cfg, logger)
	limiter := ratelimit.New(cfg.RateLimitRPM)

	backupService := service.NewBackupService(cfg, database, backends, logger)
	exportService := service.NewExportService(cfg, database, limiter, logger)

	return &Services{
		DB:            database,
		Logger:        logger,
		Backends:      backends,
		Limiter:       limiter,
		BackupService: backupService,
		ExportService: exportService,
	}, nil
}

// Services holds all initialized services
type Services struct {
	DB            *db.DB
	Logger        zerolog.Logger
	Backends      *storage.Registry
	Limiter       *ratelimit.Limiter
	BackupService *service.BackupService
	ExportService *service.ExportService
}

// Close closes all resources
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
