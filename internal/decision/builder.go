// Package decision turns a model selection into a persisted, auditable
// decision summary.
package decision

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// ScoreDecimals is the precision of scores written to a decision summary.
const ScoreDecimals = 6

// Clock supplies the build timestamp.
type Clock func() time.Time

// Builder assembles DecisionSummary records.
type Builder struct {
	clock    Clock
	rules    *RuleSet
	taskName string
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock replaces time.Now as the timestamp source.
func WithClock(clock Clock) Option {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithRules appends matching impact rule recommendations to the business impact.
func WithRules(rules *RuleSet) Option {
	return func(b *Builder) { b.rules = rules }
}

// WithTaskName sets the pipeline task name used for rule matching.
func WithTaskName(name string) Option {
	return func(b *Builder) { b.taskName = name }
}

// NewBuilder constructs a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RoundScore rounds to ScoreDecimals decimal places, half away from zero.
func RoundScore(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow10(ScoreDecimals)
	return math.Round(v*scale) / scale
}

// Build produces the decision summary for best. The ranking must be the
// selector's ranking: ranks 1..N, best in first place with its own test
// score, scores non-increasing and finite. Scores are rounded like
// metric_score.
func (b *Builder) Build(best models.TrainingResult, task models.TaskType, ranking []models.RankingEntry) (models.DecisionSummary, error) {
	const op = "decision.Build"
	metric := models.SelectionMetric(task)
	if metric == "" {
		return models.DecisionSummary{}, utils.InvalidInput(op, "unsupported task type %q", task)
	}
	if best.TaskType != "" && best.TaskType != task {
		return models.DecisionSummary{}, utils.InvalidInput(op, "result task type %q does not match %q", best.TaskType, task)
	}
	raw, ok := best.TestScore(metric)
	if !ok {
		return models.DecisionSummary{}, utils.InvalidInput(op, "%s has no %s test score", best.ModelName, metric)
	}
	if len(ranking) == 0 {
		return models.DecisionSummary{}, utils.NewAppError(op, utils.ErrEmptyInput, "empty ranking", nil)
	}
	if ranking[0].ModelName != best.ModelName {
		return models.DecisionSummary{}, utils.InvalidInput(op, "ranking leads with %s, selected %s", ranking[0].ModelName, best.ModelName)
	}

	if !finite(raw) {
		return models.DecisionSummary{}, utils.InvalidInput(op, "%s %s test score is %v", best.ModelName, metric, raw)
	}

	score := RoundScore(raw)
	rankings := make([]models.RankingEntry, len(ranking))
	for i, e := range ranking {
		if e.Rank != i+1 {
			return models.DecisionSummary{}, utils.InvalidInput(op, "ranking position %d has rank %d", i+1, e.Rank)
		}
		rounded := RoundScore(e.Score)
		if !finite(rounded) {
			return models.DecisionSummary{}, utils.InvalidInput(op, "%s ranking score is %v", e.ModelName, e.Score)
		}
		if i > 0 && rounded > rankings[i-1].Score {
			return models.DecisionSummary{}, utils.InvalidInput(op, "ranking score rises from %v to %v at rank %d", rankings[i-1].Score, rounded, e.Rank)
		}
		rankings[i] = models.RankingEntry{Rank: e.Rank, ModelName: e.ModelName, Score: rounded}
	}
	if rankings[0].Score != score {
		return models.DecisionSummary{}, utils.InvalidInput(op, "rank 1 score %v disagrees with %s %s %v", rankings[0].Score, best.ModelName, metric, score)
	}

	return models.DecisionSummary{
		SelectedModel:  best.ModelName,
		TaskType:       task,
		MetricName:     metric,
		MetricScore:    score,
		Timestamp:      utils.FormatISO(b.clock()),
		BusinessImpact: b.businessImpact(best.ModelName, task, metric, score),
		ModelRankings:  rankings,
	}, nil
}

func (b *Builder) businessImpact(model string, task models.TaskType, metric string, score float64) string {
	value := strconv.FormatFloat(score, 'f', -1, 64)

	var sentence string
	switch task {
	case models.TaskRegression:
		sentence = fmt.Sprintf(
			"The selected regression model (%s) achieves %s = %s on the hold-out test set and explains %.1f%% of variance in the target. "+
				"This level of accuracy supports data-driven premium pricing and reserve estimation.",
			model, metric, value, score*100,
		)
	default:
		sentence = fmt.Sprintf(
			"The selected classification model (%s) achieves %s = %s on the hold-out test set, balancing precision and recall for claim-occurrence prediction. "+
				"This supports risk segmentation and underwriting decisions.",
			model, metric, value,
		)
	}

	if recs := b.rules.Recommend(b.taskName, task, score); len(recs) > 0 {
		sentence += " " + strings.Join(recs, " ")
	}
	return sentence
}
