package dataset

import (
	"math"
	"sort"
	"strconv"

	"github.com/riskstack/riskmodel/internal/evaluation"
	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Column names with domain meaning.
const (
	ColTotalClaims   = "TotalClaims"
	ColTotalPremium  = "TotalPremium"
	ColHasClaim      = "HasClaim"
	ColLossRatio     = "LossRatio"
	ColClaimSeverity = "ClaimSeverity"
	ColProfitMargin  = "ProfitMargin"
)

// MissingCategory fills categorical columns with no observed values.
const MissingCategory = "Unknown"

// TargetColumns are never used as features.
var TargetColumns = []string{
	ColTotalClaims,
	ColTotalPremium,
	ColHasClaim,
	ColLossRatio,
	ColClaimSeverity,
	ColProfitMargin,
}

func isTarget(name string) bool {
	for _, t := range TargetColumns {
		if t == name {
			return true
		}
	}
	return false
}

// FillMissing returns a copy of f with numeric gaps filled by the column
// median and categorical gaps by the column mode.
func FillMissing(f *Frame) *Frame {
	out := &Frame{index: make(map[string]int, len(f.columns)), rows: f.rows}
	for _, c := range f.columns {
		if c.Missing() == 0 {
			out.set(c)
			continue
		}
		if c.Kind == Numeric {
			fill := median(c.Values)
			values := make([]float64, len(c.Values))
			for i, v := range c.Values {
				if math.IsNaN(v) {
					v = fill
				}
				values[i] = v
			}
			out.set(&Column{Name: c.Name, Kind: Numeric, Values: values})
			continue
		}
		fill := mode(c.Levels)
		levels := make([]string, len(c.Levels))
		for i, s := range c.Levels {
			if s == "" {
				s = fill
			}
			levels[i] = s
		}
		out.set(&Column{Name: c.Name, Kind: Categorical, Levels: levels})
	}
	return out
}

// median of the non-NaN values, or 0 when there are none.
func median(values []float64) float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return 0
	}
	sort.Float64s(present)
	mid := len(present) / 2
	if len(present)%2 == 1 {
		return present[mid]
	}
	return (present[mid-1] + present[mid]) / 2
}

// mode of the non-empty levels; ties go to the lexically smallest level.
func mode(levels []string) string {
	counts := make(map[string]int)
	for _, s := range levels {
		if s != "" {
			counts[s]++
		}
	}
	best, bestCount := MissingCategory, 0
	for s, n := range counts {
		if n > bestCount || (n == bestCount && s < best) {
			best, bestCount = s, n
		}
	}
	return best
}

// EngineerFeatures adds HasClaim, LossRatio, ClaimSeverity and ProfitMargin
// when both TotalClaims and TotalPremium are numeric columns.
func EngineerFeatures(f *Frame) *Frame {
	claims, ok1 := f.Column(ColTotalClaims)
	premium, ok2 := f.Column(ColTotalPremium)
	if !ok1 || !ok2 || claims.Kind != Numeric || premium.Kind != Numeric {
		return f
	}

	n := f.rows
	hasClaim := make([]float64, n)
	lossRatio := make([]float64, n)
	severity := make([]float64, n)
	margin := make([]float64, n)
	for i := 0; i < n; i++ {
		c, p := claims.Values[i], premium.Values[i]
		if c > 0 {
			hasClaim[i] = 1
			severity[i] = c
		}
		lossRatio[i] = evaluation.LossRatio(c, p)
		margin[i] = p - c
	}

	out := &Frame{index: make(map[string]int, len(f.columns)+4), rows: n}
	for _, c := range f.columns {
		out.set(c)
	}
	out.set(&Column{Name: ColHasClaim, Kind: Numeric, Values: hasClaim})
	out.set(&Column{Name: ColLossRatio, Kind: Numeric, Values: lossRatio})
	out.set(&Column{Name: ColClaimSeverity, Kind: Numeric, Values: severity})
	out.set(&Column{Name: ColProfitMargin, Kind: Numeric, Values: margin})
	return out
}

// Encoding maps each encoded column to its sorted levels; a level's code is
// its index.
type Encoding map[string][]string

// EncodeCategoricals label-encodes every categorical non-target column using
// sorted level codes.
func EncodeCategoricals(f *Frame) (*Frame, Encoding) {
	enc := make(Encoding)
	out := &Frame{index: make(map[string]int, len(f.columns)), rows: f.rows}
	for _, c := range f.columns {
		if c.Kind != Categorical || isTarget(c.Name) {
			out.set(c)
			continue
		}
		seen := make(map[string]struct{})
		for _, s := range c.Levels {
			seen[s] = struct{}{}
		}
		levels := make([]string, 0, len(seen))
		for s := range seen {
			levels = append(levels, s)
		}
		sort.Strings(levels)
		codes := make(map[string]float64, len(levels))
		for i, s := range levels {
			codes[s] = float64(i)
		}
		values := make([]float64, len(c.Levels))
		for i, s := range c.Levels {
			values[i] = codes[s]
		}
		enc[c.Name] = levels
		out.set(&Column{Name: c.Name, Kind: Numeric, Values: values})
	}
	return out, enc
}

// Preprocess runs FillMissing, EngineerFeatures and EncodeCategoricals.
func Preprocess(f *Frame) (*Frame, Encoding) {
	return EncodeCategoricals(EngineerFeatures(FillMissing(f)))
}

// TaskSpec names a modelling task over the policy table.
type TaskSpec struct {
	Name           string          `yaml:"name"`
	Target         string          `yaml:"target"`
	Type           models.TaskType `yaml:"type"`
	FilterPositive bool            `yaml:"filterPositive"`
}

// DefaultTasks are the severity, premium and claim probability models.
func DefaultTasks() []TaskSpec {
	return []TaskSpec{
		{Name: "severity", Target: ColTotalClaims, Type: models.TaskRegression, FilterPositive: true},
		{Name: "premium", Target: ColTotalPremium, Type: models.TaskRegression},
		{Name: "claim_probability", Target: ColHasClaim, Type: models.TaskClassification},
	}
}

// Features is a dense feature matrix with its target vector.
type Features struct {
	Names []string
	X     [][]float64
	Y     []float64
}

// FeaturesTarget extracts numeric non-target columns as features and target
// as the label. With filterPositive only rows whose target is > 0 are kept.
func FeaturesTarget(f *Frame, target string, filterPositive bool) (Features, error) {
	const op = "dataset.FeaturesTarget"
	tc, ok := f.Column(target)
	if !ok {
		return Features{}, utils.InvalidInput(op, "target column %q not found", target)
	}
	if tc.Kind != Numeric {
		return Features{}, utils.InvalidInput(op, "target column %q is not numeric", target)
	}
	if filterPositive {
		keep := make([]bool, f.rows)
		for i, v := range tc.Values {
			keep[i] = v > 0
		}
		f = f.filter(keep)
		tc, _ = f.Column(target)
	}
	if f.rows == 0 {
		return Features{}, utils.NewAppError(op, utils.ErrEmptyInput, "no rows for target "+strconv.Quote(target), nil)
	}

	var cols []*Column
	var names []string
	for _, c := range f.columns {
		if isTarget(c.Name) || c.Name == target || c.Kind != Numeric {
			continue
		}
		cols = append(cols, c)
		names = append(names, c.Name)
	}
	if len(cols) == 0 {
		return Features{}, utils.InvalidInput(op, "no numeric feature columns")
	}

	X := make([][]float64, f.rows)
	for r := range X {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c.Values[r]
		}
		X[r] = row
	}
	return Features{Names: names, X: X, Y: append([]float64(nil), tc.Values...)}, nil
}
