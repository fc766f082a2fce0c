package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ultradar/internal/export"
	"github.com/sells-group/ultradar/internal/shape"
)

// -- stores --

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List store names",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		src, err := initAnalytics(ctx)
		if err != nil {
			return err
		}
		stores, err := src.Stores(ctx)
		if err != nil {
			return eris.Wrap(err, "stores")
		}
		for _, s := range stores {
			_, _ = fmt.Fprintln(os.Stdout, s)
		}
		return nil
	},
}

// -- curves --

var curvesCmd = &cobra.Command{
	Use:   "curves",
	Short: "Show every store's slot curve for one day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		day, _ := cmd.Flags().GetString("day")
		out, _ := cmd.Flags().GetString("xlsx")

		src, err := initAnalytics(ctx)
		if err != nil {
			return err
		}
		curves, err := src.CurvesByDay(ctx, day)
		if err != nil {
			return eris.Wrap(err, "curves")
		}

		if out != "" {
			f, err := export.Curves(day, curves)
			if err != nil {
				return err
			}
			if err := export.Save(f, out); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stderr, "Wrote %d stores to %s\n", len(curves.Datasets), out)
			return nil
		}
		if len(curves.Datasets) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "No data for", day)
			return nil
		}
		formatCurves(os.Stdout, curves)
		return nil
	},
}

// -- slot-of-day --

var slotOfDayCmd = &cobra.Command{
	Use:   "slot-of-day",
	Short: "Show one store's slots on one day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		store, _ := cmd.Flags().GetString("store")
		day, _ := cmd.Flags().GetString("day")
		out, _ := cmd.Flags().GetString("xlsx")

		src, err := initAnalytics(ctx)
		if err != nil {
			return err
		}
		recs, err := src.SlotOfDay(ctx, store, day)
		if err != nil {
			return eris.Wrap(err, "slot-of-day")
		}

		if out != "" {
			f, err := export.Slots(recs)
			if err != nil {
				return err
			}
			return export.Save(f, out)
		}
		if len(recs) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "No slots found.")
			return nil
		}
		formatSlots(os.Stdout, recs)
		return nil
	},
}

// -- by-week --

var byWeekCmd = &cobra.Command{
	Use:   "by-week",
	Short: "Show weekly slot curves",
	Long:  "Shows the weekly view for one ISO week, flat or grouped as a per-store heatmap. Defaults to the current week.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		raw, _ := cmd.Flags().GetFloat64("week")
		heatmap, _ := cmd.Flags().GetBool("heatmap")
		out, _ := cmd.Flags().GetString("xlsx")

		week := shape.ISOWeek(time.Now())
		if cmd.Flags().Changed("week") {
			w, ok := shape.SanitizeWeek(raw)
			if !ok {
				return eris.Errorf("by-week: invalid week %v", raw)
			}
			week = w
		}

		src, err := initAnalytics(ctx)
		if err != nil {
			return err
		}

		if heatmap || out != "" {
			hm, err := src.Heatmap(ctx, week)
			if err != nil {
				return eris.Wrap(err, "by-week")
			}
			if out != "" {
				f, err := export.Heatmap(hm)
				if err != nil {
					return err
				}
				return export.Save(f, out)
			}
			return writeIndented(os.Stdout, hm)
		}

		recs, err := src.ByWeek(ctx, week)
		if err != nil {
			return eris.Wrap(err, "by-week")
		}
		if len(recs) == 0 {
			_, _ = fmt.Fprintf(os.Stderr, "No data for week %d.\n", week)
			return nil
		}
		formatWeek(os.Stdout, recs)
		return nil
	},
}

func init() {
	curvesCmd.Flags().String("day", "", "order day (YYYY-MM-DD)")
	curvesCmd.Flags().String("xlsx", "", "write a workbook to this path instead of printing")
	_ = curvesCmd.MarkFlagRequired("day")

	slotOfDayCmd.Flags().String("store", "", "store name")
	slotOfDayCmd.Flags().String("day", "", "order day (YYYY-MM-DD)")
	slotOfDayCmd.Flags().String("xlsx", "", "write a workbook to this path instead of printing")
	_ = slotOfDayCmd.MarkFlagRequired("store")
	_ = slotOfDayCmd.MarkFlagRequired("day")

	byWeekCmd.Flags().Float64("week", 0, "ISO week number, clamped to 1-53 (default current week)")
	byWeekCmd.Flags().Bool("heatmap", false, "group by store, weekday and interval")
	byWeekCmd.Flags().String("xlsx", "", "write the heatmap to this workbook")

	rootCmd.AddCommand(storesCmd, curvesCmd, slotOfDayCmd, byWeekCmd)
}

func formatCurves(out io.Writer, c shape.Curves) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"INTERVAL"}
	for _, ds := range c.Datasets {
		header = append(header, ds.Label)
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))

	for i, label := range c.Labels {
		cols := []string{label}
		for _, ds := range c.Datasets {
			v := ""
			if i < len(ds.Data) {
				v = pct(ds.Data[i])
			}
			cols = append(cols, v)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	_ = w.Flush()
}

func formatSlots(out io.Writer, recs []shape.SlotRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INTERVAL\tORDERS\tDAILY\tPCT\tCUM_PCT")
	_, _ = fmt.Fprintln(w, "--------\t------\t-----\t---\t-------")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.TimeInterval,
			r.Orders,
			r.DailyOrders,
			pct(scale(r.PctOfDay)),
			pct(scale(r.CumPct)),
		)
	}
	_ = w.Flush()
}

func formatWeek(out io.Writer, recs []shape.WeekRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STORE\tDAY\tINTERVAL\tPCT")
	_, _ = fmt.Fprintln(w, "-----\t---\t--------\t---")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.StoreName, r.DayOfWeek, r.TimeInterval, pct(shape.NormalizePct(r.PctOfDay)))
	}
	_ = w.Flush()
}

// scale turns a 0..1 share into a percentage.
func scale(n shape.Number) shape.Number {
	if n.Valid {
		n.Value *= 100
	}
	return n
}

func pct(n shape.Number) string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", n.Value)
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
