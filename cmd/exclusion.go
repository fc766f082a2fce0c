package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ultradar/internal/catalog"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/exclusion"
	"github.com/sells-group/ultradar/internal/validation"
)

var exclusionCmd = &cobra.Command{
	Use:   "exclusion",
	Short: "Create and list date exclusions",
}

// -- exclusion create --

var exclusionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Store an exclusion for a run of consecutive days",
	Long:  "Builds an exclusion from --file or from flags. Dates must form one consecutive run; strategies given by name are resolved against the stored catalog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		form, err := exclusionForm(cmd)
		if err != nil {
			return err
		}

		st, err := initDocStore(ctx, nil)
		if err != nil {
			return err
		}
		defer docstore.Close(st.Backend())

		cache := catalog.NewCache(catalog.DocStoreSource(st, cfg.DocStore.StrategiesPrefix), 0)
		doc, err := validation.BuildExclusion(ctx, form, catalog.NewResolver(cache), nil, nil)
		if err != nil {
			return err
		}
		loc, err := st.Put(ctx, docstore.DocumentKey(cfg.DocStore.ExclusionsPrefix, doc.ExclusionID), doc, "")
		if err != nil {
			return eris.Wrap(err, "exclusion create")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Stored %q (%d days) at %s/%s\n", doc.Name, len(doc.Dates), loc.Bucket, loc.Key)
		return nil
	},
}

// -- exclusion list --

var exclusionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored exclusions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listDocuments(cmd, cfg.DocStore.ExclusionsPrefix)
	},
}

func init() {
	f := exclusionCreateCmd.Flags()
	f.String("file", "", "exclusion form file (yaml or json)")
	f.String("name", "", "exclusion name")
	f.String("description", "", "exclusion description")
	f.StringSlice("date", nil, "excluded day (YYYY-MM-DD), repeatable")
	f.StringSlice("store", nil, "store filter, repeatable or comma separated")
	f.StringSlice("strategy", nil, "strategy filter by name or id, repeatable")
	exclusionListCmd.Flags().String("prefix", "", "key prefix (default from config)")

	exclusionCmd.AddCommand(exclusionCreateCmd, exclusionListCmd)
	rootCmd.AddCommand(exclusionCmd)
}

// exclusionForm reads --file when given, otherwise builds the form from the
// individual flags. Dates are added one at a time so a gap is reported on
// the day that causes it.
func exclusionForm(cmd *cobra.Command) (validation.ExclusionForm, error) {
	var form validation.ExclusionForm
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		if err := readFile(path, &form); err != nil {
			return form, err
		}
		return form, nil
	}

	form.Name, _ = cmd.Flags().GetString("name")
	form.Description, _ = cmd.Flags().GetString("description")
	form.Stores, _ = cmd.Flags().GetStringSlice("store")
	dates, _ := cmd.Flags().GetStringSlice("date")
	names, _ := cmd.Flags().GetStringSlice("strategy")

	run, err := validation.NewDateRun()
	if err != nil {
		return form, err
	}
	for _, d := range dates {
		if err := run.Add(d); err != nil {
			return form, eris.Wrapf(err, "date %s", d)
		}
	}
	form.Dates = run.Dates()
	for _, n := range names {
		form.Strategies = append(form.Strategies, exclusion.StrategyRef{Name: n})
	}
	return form, nil
}
