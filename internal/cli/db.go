package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/render"
)

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: color.GreenString(`Manage the collector SQLite database.

The database stores data sources, templates, and every template's backing table.`),
	}

	cmd.AddCommand(newDBInitCommand())
	cmd.AddCommand(newDBStatusCommand())
	cmd.AddCommand(newDBBackupCommand())
	cmd.AddCommand(newDBHealthCommand())

	return cmd
}

func newDBInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize database",
		RunE: func(cmd *cobra.Command, args []string) error {
			color.Yellow("Initializing database at: %s", cfg.Database.Path)

			a, err := openApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer a.close()

			color.Green("Database initialized successfully!")
			return nil
		},
	}
}

func newDBStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			migrations, err := a.manager.Migrations().GetMigrationStatus(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(migrations))
			for _, m := range migrations {
				applied := "pending"
				if m.Applied && m.AppliedAt != nil {
					applied = m.AppliedAt.Format("2006-01-02 15:04:05")
				}
				rows = append(rows, []string{m.ID, m.Description, applied})
			}

			fmt.Println(render.Table([]string{"id", "description", "applied"}, rows))
			return nil
		},
	}
}

func newDBBackupCommand() *cobra.Command {
	var opts db.BackupOptions

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup database",
		RunE: func(cmd *cobra.Command, args []string) error {
			color.Yellow("Backing up database to: %s", opts.OutputPath)

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			info, err := db.NewBackupManager(a.manager).Backup(cmd.Context(), opts)
			if err != nil {
				return err
			}

			color.Green("Backup written: %s", info)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.OutputPath, "output", "backup.db", "Backup file path")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "Gzip the backup")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "Run an integrity check on the snapshot")
	return cmd
}

func newDBHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database integrity and template source references",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			status := db.NewHealthManager(a.manager).CheckHealth(cmd.Context())
			db.PrintHealthStatus(status)

			if status.Status == db.CheckError {
				return fmt.Errorf("database health check failed")
			}
			return nil
		},
	}
}
