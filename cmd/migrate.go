package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tianzhicdev/dogetionary-sub008/internal/database"
	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Manage database migrations for the video backend.

The backend keeps videos and word mappings in sqlite. Its schema is created
and upgraded from the model definitions.

Available subcommands:
  up      - Apply all pending migrations
  down    - Drop the backend tables
  status  - Show current migration status`,
}

// migrateUpCmd applies pending migrations
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Long: `Apply all pending database migrations.

Creates missing tables, columns and indexes for the video backend. Existing
data is kept.`,
	RunE: runMigrateUp,
}

// migrateDownCmd drops the backend schema
var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop the backend tables",
	Long: `Drop every video backend table.

This deletes all stored videos and word mappings. You are asked to confirm
unless --yes is given.`,
	RunE: runMigrateDown,
}

// migrateStatusCmd shows migration status
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long: `Display the current status of database migrations.

Shows which backend tables exist and how many rows each holds.`,
	RunE: runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateCmd.PersistentFlags().Bool("dry-run", false, "show what would be done without making changes")
	migrateDownCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func openDatabase(cmd *cobra.Command) (*database.DB, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return database.Initialize(cfg.Database.Path, cfg.Database.Verbose)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out := cmd.OutOrStdout()

	db, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if dryRun {
		fmt.Fprintln(out, "Dry run mode - no changes will be made")
		for _, m := range models.AllModels() {
			state := "up to date"
			if !db.Migrator().HasTable(m) {
				state = "would be created"
			}
			fmt.Fprintf(out, "  %-24s %s\n", tableName(db, m), state)
		}
		return nil
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return err
	}
	fmt.Fprintln(out, "Migrations applied")
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	yes, _ := cmd.Flags().GetBool("yes")
	out := cmd.OutOrStdout()

	db, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	all := models.AllModels()
	if dryRun {
		fmt.Fprintln(out, "Dry run mode - no changes will be made")
		for _, m := range all {
			fmt.Fprintf(out, "  would drop %s\n", tableName(db, m))
		}
		return nil
	}

	if !yes && !confirm(cmd, fmt.Sprintf("WARNING: This will drop %d table(s) and delete all videos. Continue? (y/N): ", len(all))) {
		fmt.Fprintln(out, "Migration rollback cancelled")
		return nil
	}

	// Mappings reference videos, so drop in reverse order
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("drop %s: %w", tableName(db, all[i]), err)
		}
	}
	fmt.Fprintln(out, "Backend tables dropped")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle("Database Migration Status")
	t.AppendHeader(table.Row{"Table", "Status", "Rows"})
	for _, m := range models.AllModels() {
		name := tableName(db, m)
		if !db.Migrator().HasTable(m) {
			t.AppendRow(table.Row{name, "pending", "-"})
			continue
		}
		var count int64
		if err := db.Model(m).Count(&count).Error; err != nil {
			return fmt.Errorf("count %s: %w", name, err)
		}
		t.AppendRow(table.Row{name, "applied", count})
	}
	t.Render()
	return nil
}

func tableName(db *database.DB, model any) string {
	stmt := &gorm.Statement{DB: db.DB}
	if err := stmt.Parse(model); err == nil && stmt.Schema != nil {
		return stmt.Schema.Table
	}
	return fmt.Sprintf("%T", model)
}

// confirm asks prompt on the command's output and reads a y/N answer.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}
