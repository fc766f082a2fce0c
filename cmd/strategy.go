package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ultradar/internal/curve"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/strategy"
	"github.com/sells-group/ultradar/internal/validation"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Validate, preview and store decay strategies",
}

// -- strategy validate --

var strategyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a strategy form file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		form, err := loadForm(cmd)
		if err != nil {
			return err
		}
		errs := validation.ValidateStrategyAll(form)
		if len(errs) == 0 {
			_, _ = fmt.Fprintln(os.Stdout, "OK")
			return nil
		}
		formatFieldErrors(os.Stdout, errs)
		return eris.Errorf("strategy validate: %d problem(s)", len(errs))
	},
}

// -- strategy preview --

var strategyPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the weights and trust a strategy produces",
	RunE: func(cmd *cobra.Command, _ []string) error {
		form, err := loadForm(cmd)
		if err != nil {
			return err
		}
		var series curve.Series
		if path, _ := cmd.Flags().GetString("series"); path != "" {
			if err := readFile(path, &series); err != nil {
				return err
			}
		}
		doc, err := validation.BuildStrategy(form, nil, nil)
		if err != nil {
			return err
		}
		p, err := curve.BuildPreview(doc, series)
		if err != nil {
			return eris.Wrap(err, "strategy preview")
		}
		return writeIndented(os.Stdout, p)
	},
}

// -- strategy push --

var strategyPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Store a new strategy from a form file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		form, err := loadForm(cmd)
		if err != nil {
			return err
		}
		doc, err := validation.BuildStrategy(form, nil, nil)
		if err != nil {
			return err
		}

		st, err := initDocStore(ctx, nil)
		if err != nil {
			return err
		}
		defer docstore.Close(st.Backend())

		loc, err := st.Put(ctx, docstore.DocumentKey(cfg.DocStore.StrategiesPrefix, doc.StrategyID), doc, "")
		if err != nil {
			return eris.Wrap(err, "strategy push")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Stored %s version %d at %s/%s\n", doc.StrategyID, doc.Version, loc.Bucket, loc.Key)
		return nil
	},
}

// -- strategy edit --

var strategyEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Replace a stored strategy with the next version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		key, _ := cmd.Flags().GetString("key")
		editor, _ := cmd.Flags().GetString("editor")
		form, err := loadForm(cmd)
		if err != nil {
			return err
		}

		st, err := initDocStore(ctx, nil)
		if err != nil {
			return err
		}
		defer docstore.Close(st.Backend())

		prev, err := st.Get(ctx, key)
		if err != nil {
			return eris.Wrap(err, "strategy edit")
		}
		doc, err := validation.BuildEdit(strategy.Previous{
			Payload: prev.Payload,
			Bucket:  prev.Bucket,
			Key:     prev.Key,
			ETag:    prev.ETag,
		}, form, editor, nil)
		if err != nil {
			return err
		}
		loc, err := st.Put(ctx, prev.Key, doc, prev.ETag)
		if err != nil {
			return eris.Wrap(err, "strategy edit")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Stored %s version %d at %s/%s\n", doc.StrategyID, doc.Version, loc.Bucket, loc.Key)
		return nil
	},
}

// -- strategy list --

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored strategies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listDocuments(cmd, cfg.DocStore.StrategiesPrefix)
	},
}

func init() {
	for _, c := range []*cobra.Command{strategyValidateCmd, strategyPreviewCmd, strategyPushCmd, strategyEditCmd} {
		c.Flags().String("file", "", "strategy form file (yaml or json)")
		_ = c.MarkFlagRequired("file")
	}
	strategyPreviewCmd.Flags().String("series", "", "sample series file (yaml or json)")
	strategyEditCmd.Flags().String("key", "", "object key of the strategy to edit")
	strategyEditCmd.Flags().String("editor", "", "who is editing (default created_by from the form)")
	_ = strategyEditCmd.MarkFlagRequired("key")
	strategyListCmd.Flags().String("prefix", "", "key prefix (default from config)")

	strategyCmd.AddCommand(strategyValidateCmd, strategyPreviewCmd, strategyPushCmd, strategyEditCmd, strategyListCmd)
	rootCmd.AddCommand(strategyCmd)
}

func loadForm(cmd *cobra.Command) (validation.StrategyForm, error) {
	path, _ := cmd.Flags().GetString("file")
	var form validation.StrategyForm
	if err := readFile(path, &form); err != nil {
		return form, err
	}
	return form, nil
}

func listDocuments(cmd *cobra.Command, defaultPrefix string) error {
	ctx := cmd.Context()
	prefix, _ := cmd.Flags().GetString("prefix")
	if prefix == "" {
		prefix = defaultPrefix
	}

	st, err := initDocStore(ctx, nil)
	if err != nil {
		return err
	}
	defer docstore.Close(st.Backend())

	entries, err := st.List(ctx, prefix, true)
	if err != nil {
		return eris.Wrap(err, "list documents")
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No documents found.")
		return nil
	}
	formatEntries(os.Stdout, entries)
	return nil
}

func formatEntries(out io.Writer, entries []docstore.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tVERSION\tCREATED_BY\tMODIFIED\tSIZE_KB")
	_, _ = fmt.Fprintln(w, "---\t----\t-------\t----------\t--------\t-------")
	for _, e := range entries {
		var name, version, createdBy string
		var size float64
		if e.Summary != nil {
			name = e.Summary.Name
			version = strings.Trim(string(e.Summary.Version), `"`)
			createdBy = e.Summary.CreatedBy
			size = e.Summary.SizeKB
		}
		if r := []rune(name); len(r) > 30 {
			name = string(r[:27]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\n",
			e.Key, name, version, createdBy, e.LastModified.Format("2006-01-02 15:04"), size)
	}
	_ = w.Flush()
}

func formatFieldErrors(out io.Writer, errs []validation.FieldError) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tPROBLEM")
	for _, e := range errs {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Field, e.Message)
	}
	_ = w.Flush()
}
