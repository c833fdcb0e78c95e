package migrate

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/micropaywall/paygate/internal/infrastructure/config"
	"github.com/micropaywall/paygate/internal/infrastructure/database"
	"github.com/micropaywall/paygate/internal/infrastructure/migration"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Create the engine tables from the gorm models and inspect their status.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		newUpCommand(),
		newStatusCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create or widen all tables",
		Long:  `Apply gorm auto-migrate for every engine table. Columns are added, never dropped.`,
		RunE:  runUp,
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  `List the engine tables and whether each one exists.`,
		RunE:  runStatus,
	}
}

func initEnv() (*gorm.DB, logger.Interface, error) {
	cfg, err := config.Load("", configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, false); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := database.Init(&cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return database.Get(), logger.NewLogger(), nil
}

func runUp(cmd *cobra.Command, args []string) error {
	db, log, err := initEnv()
	if err != nil {
		return err
	}
	defer database.Close()

	log.Infow("running migrations", "environment", env)

	if err := migration.NewManager(log).Migrate(db, migration.AutoMigrateModels()...); err != nil {
		return err
	}

	log.Infow("migrations completed successfully")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, log, err := initEnv()
	if err != nil {
		return err
	}
	defer database.Close()

	status, err := migration.NewManager(log).Status(db, migration.AutoMigrateModels()...)
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), status)
}

func printStatus(out io.Writer, status []migration.TableStatus) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "TABLE\tSTATUS\n")
	missing := 0
	for _, s := range status {
		state := "ok"
		if !s.Exists {
			state = "missing"
			missing++
		}
		fmt.Fprintf(w, "%s\t%s\n", s.Table, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if missing > 0 {
		fmt.Fprintf(out, "\n%d table(s) missing, run `paygate migrate up`\n", missing)
	}
	return nil
}
