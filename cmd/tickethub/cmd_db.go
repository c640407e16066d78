package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/config"
	"github.com/tickethub/tickethub/database/seeders"
	"github.com/tickethub/tickethub/internal/server"
	"github.com/tickethub/tickethub/pkg/database"
	"github.com/tickethub/tickethub/pkg/migration"
)

// bootDB loads config and opens the SQL database.
func bootDB() (*gorm.DB, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	return database.Connect()
}

// tickethub migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending SQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bootDB()
		if err != nil {
			return err
		}
		ran, err := migration.New(db).Run(cmd.Context())
		for _, name := range ran {
			fmt.Println("  Migrated:", name)
		}
		if err == nil && len(ran) == 0 {
			fmt.Println("Nothing to migrate.")
		}
		return err
	},
}

// tickethub migrate:rollback
var migrateRollbackCmd = &cobra.Command{
	Use:   "migrate:rollback",
	Short: "Roll back the last batch of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bootDB()
		if err != nil {
			return err
		}
		rolled, err := migration.New(db).Rollback(cmd.Context())
		for _, name := range rolled {
			fmt.Println("  Rolled back:", name)
		}
		if err == nil && len(rolled) == 0 {
			fmt.Println("Nothing to roll back.")
		}
		return err
	},
}

// tickethub migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show the status of each migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bootDB()
		if err != nil {
			return err
		}
		statuses, err := migration.New(db).Status(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RAN\tBATCH\tMIGRATION")
		for _, s := range statuses {
			ran, batch := "No", "-"
			if s.Ran {
				ran, batch = "Yes", fmt.Sprint(s.Batch)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", ran, batch, s.Name)
		}
		return w.Flush()
	},
}

// tickethub mongo:indexes
var mongoIndexesCmd = &cobra.Command{
	Use:   "mongo:indexes",
	Short: "Create the MongoDB indexes the repositories rely on",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		ctx := cmd.Context()
		client, db, err := database.ConnectMongo(ctx)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())

		if err := repositories.EnsureIndexes(ctx, db); err != nil {
			return err
		}
		fmt.Println("Indexes ensured on", db.Name())
		return nil
	},
}

// tickethub db:seed
var seedCmd = &cobra.Command{
	Use:   "db:seed",
	Short: "Fill the document store with development users and orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.WithRepositories(cmd.Context(), func(repos repositories.Repositories) error {
			done, err := seeders.RunAll(cmd.Context(), repos)
			for _, name := range done {
				fmt.Println("  Seeded:", name)
			}
			return err
		})
	},
}
