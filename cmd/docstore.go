package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ultradar/internal/docstore"
)

var docstoreCmd = &cobra.Command{
	Use:   "docstore",
	Short: "Document store maintenance",
}

var docstoreMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the document tables for the postgres and sqlite drivers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("docstore"); err != nil {
			return err
		}
		backend, err := docstore.OpenBackend(ctx, cfg.DocStore, cfg.Query.Region)
		if err != nil {
			return err
		}
		defer docstore.Close(backend)

		m, ok := backend.(docstore.Migrator)
		if !ok {
			_, _ = fmt.Fprintf(os.Stdout, "Driver %s has no schema.\n", backend.Name())
			return nil
		}
		if err := m.Migrate(ctx); err != nil {
			return eris.Wrap(err, "docstore migrate")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Migrated %s.\n", backend.Name())
		return nil
	},
}

func init() {
	docstoreCmd.AddCommand(docstoreMigrateCmd)
	rootCmd.AddCommand(docstoreCmd)
}
