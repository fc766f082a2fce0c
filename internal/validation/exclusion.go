package validation

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/ultradar/internal/exclusion"
)

// Exclusion date messages.
const (
	MsgDatesRequired   = "Please add at least one date before creating the exclusion."
	MsgDateFormat      = "Use a valid date in the format YYYY-MM-DD."
	MsgDatesContiguous = "Only consecutive days can be added. Pick the next day in sequence."
)

// DateRun is a set of calendar days that always forms one unbroken run.
type DateRun struct {
	days []time.Time
}

// NewDateRun adds dates one by one, stopping at the first rejected one.
func NewDateRun(dates ...string) (*DateRun, error) {
	r := &DateRun{}
	for _, d := range dates {
		if err := r.Add(d); err != nil {
			return r, err
		}
	}
	return r, nil
}

// Add puts date into the run. A date already present is a no-op. A date
// that would leave a gap is rejected and the run is left unchanged.
func (r *DateRun) Add(date string) error {
	day, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
	if err != nil {
		return fieldErr("dates", MsgDateFormat)
	}
	for _, d := range r.days {
		if d.Equal(day) {
			return nil
		}
	}

	next := append(append([]time.Time(nil), r.days...), day)
	sort.Slice(next, func(i, j int) bool { return next[i].Before(next[j]) })
	if !contiguous(next) {
		return fieldErr("dates", MsgDatesContiguous)
	}
	r.days = next
	return nil
}

// Len returns the number of days in the run.
func (r *DateRun) Len() int { return len(r.days) }

// Dates returns the run as sorted YYYY-MM-DD strings.
func (r *DateRun) Dates() []string {
	out := make([]string, len(r.days))
	for i, d := range r.days {
		out[i] = d.Format(time.DateOnly)
	}
	return out
}

func contiguous(days []time.Time) bool {
	for i := 1; i < len(days); i++ {
		if !days[i-1].AddDate(0, 0, 1).Equal(days[i]) {
			return false
		}
	}
	return true
}

// ExclusionForm is the editable state of an exclusion. Filters accepts the
// stored document shape; its stores and strategies are merged with the
// top-level ones.
type ExclusionForm struct {
	Name        string                  `json:"name" yaml:"name"`
	Description string                  `json:"description" yaml:"description"`
	Dates       []string                `json:"dates" yaml:"dates"`
	Stores      []string                `json:"stores" yaml:"stores"`
	Strategies  []exclusion.StrategyRef `json:"strategies" yaml:"strategies"`
	Filters     *exclusion.Filters      `json:"filters,omitempty" yaml:"filters,omitempty"`
}

func (f ExclusionForm) stores() []string {
	items := append([]string(nil), f.Stores...)
	if f.Filters != nil {
		items = append(items, f.Filters.Stores...)
	}
	return SplitStores(items...)
}

func (f ExclusionForm) strategies() []exclusion.StrategyRef {
	refs := append([]exclusion.StrategyRef(nil), f.Strategies...)
	if f.Filters != nil {
		refs = append(refs, f.Filters.Strategies...)
	}
	return refs
}

// sortedDates returns the trimmed dates in calendar order. A whole set is
// checked as one run, independent of the order it was submitted in.
func sortedDates(dates []string) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = strings.TrimSpace(d)
	}
	sort.Strings(out)
	return out
}

// StrategyResolver enriches strategy filters. Implementations must not fail:
// an unavailable catalog leaves refs as given.
type StrategyResolver interface {
	Resolve(ctx context.Context, refs []exclusion.StrategyRef) []exclusion.StrategyRef
}

// ValidateExclusion checks that f has at least one date and that its dates,
// taken in calendar order, form one contiguous run.
func ValidateExclusion(f ExclusionForm) *FieldError {
	if len(f.Dates) == 0 {
		return fieldErr("dates", MsgDatesRequired)
	}
	if _, err := NewDateRun(sortedDates(f.Dates)...); err != nil {
		return err.(*FieldError)
	}
	return nil
}

// BuildExclusion validates f and produces a document. res may be nil.
func BuildExclusion(ctx context.Context, f ExclusionForm, res StrategyResolver, now func() time.Time, newID func() string) (exclusion.Document, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	if fe := ValidateExclusion(f); fe != nil {
		return exclusion.Document{}, fe
	}
	run, _ := NewDateRun(sortedDates(f.Dates)...)

	stores := f.stores()
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = exclusion.DefaultGlobalName
		if len(stores) > 0 {
			name = exclusion.DefaultStoreName
		}
	}
	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		desc = exclusion.DefaultDescription
	}

	refs := f.strategies()
	if res != nil {
		refs = res.Resolve(ctx, refs)
	}
	if refs == nil {
		refs = []exclusion.StrategyRef{}
	}

	return exclusion.Document{
		ExclusionID: newID(),
		Name:        name,
		Description: desc,
		CreatedAt:   now().UTC().Format(time.RFC3339),
		Dates:       run.Dates(),
		Filters:     exclusion.Filters{Stores: stores, Strategies: refs},
	}, nil
}

// SplitStores splits each item on commas, trims, drops blanks and removes
// repeats, keeping first-seen order.
func SplitStores(items ...string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, item := range items {
		for _, s := range strings.Split(item, ",") {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
