// Package selection picks the best TrainingResult for a task and ranks the
// rest. It is a pure function of its input.
package selection

import (
	"math"
	"sort"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Selection is the best result together with the full ranking.
type Selection struct {
	Best       models.TrainingResult
	TaskType   models.TaskType
	MetricName string
	Ranking    []models.RankingEntry
}

// Best returns the result with the highest selection metric. Ties keep the
// earliest result in input order.
func Best(results []models.TrainingResult) (models.TrainingResult, error) {
	ordered, _, err := rank(results)
	if err != nil {
		return models.TrainingResult{}, err
	}
	return ordered[0].result, nil
}

// Ranking returns every result sorted by descending selection metric with
// 1-based ranks.
func Ranking(results []models.TrainingResult) ([]models.RankingEntry, error) {
	ordered, _, err := rank(results)
	if err != nil {
		return nil, err
	}
	return entries(ordered), nil
}

// Select computes Best and Ranking in one pass.
func Select(results []models.TrainingResult) (Selection, error) {
	ordered, metric, err := rank(results)
	if err != nil {
		return Selection{}, err
	}
	return Selection{
		Best:       ordered[0].result,
		TaskType:   ordered[0].result.TaskType,
		MetricName: metric,
		Ranking:    entries(ordered),
	}, nil
}

type scored struct {
	result models.TrainingResult
	score  float64
}

func rank(results []models.TrainingResult) ([]scored, string, error) {
	const op = "selection.Select"
	if len(results) == 0 {
		return nil, "", utils.NewAppError(op, utils.ErrEmptyInput, "no training results", nil)
	}

	task := results[0].TaskType
	metric := models.SelectionMetric(task)
	if metric == "" {
		return nil, "", utils.InvalidInput(op, "unsupported task type %q", task)
	}

	ordered := make([]scored, 0, len(results))
	for _, r := range results {
		if r.TaskType != task {
			return nil, "", utils.InvalidInput(op, "mixed task types %q and %q", task, r.TaskType)
		}
		score, ok := r.TestScore(metric)
		if !ok {
			return nil, "", utils.InvalidInput(op, "%s has no %s test score", r.ModelName, metric)
		}
		ordered = append(ordered, scored{result: r, score: score})
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return better(ordered[i].score, ordered[j].score)
	})
	return ordered, metric, nil
}

// better orders scores descending with NaN last.
func better(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a > b
}

func entries(ordered []scored) []models.RankingEntry {
	out := make([]models.RankingEntry, len(ordered))
	for i, s := range ordered {
		out[i] = models.RankingEntry{Rank: i + 1, ModelName: s.result.ModelName, Score: s.score}
	}
	return out
}
