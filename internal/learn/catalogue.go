package learn

import (
	"fmt"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Catalogue keys, as used in configuration.
const (
	KeyLinearRegression   = "linear_regression"
	KeyLogisticRegression = "logistic_regression"
	KeyDecisionTree       = "decision_tree"
	KeyRandomForest       = "random_forest"
	KeyGradientBoosting   = "gradient_boosting"
	KeyXGBoost            = "xgboost"
)

// Entry describes one catalogue algorithm.
type Entry struct {
	Key      string
	Name     string
	Tasks    []models.TaskType
	Defaults Params
	New      func(task models.TaskType, p Params) Trainable
}

func (e Entry) supports(task models.TaskType) bool {
	for _, t := range e.Tasks {
		if t == task {
			return true
		}
	}
	return false
}

var (
	regressionOnly     = []models.TaskType{models.TaskRegression}
	classificationOnly = []models.TaskType{models.TaskClassification}
	bothTasks          = []models.TaskType{models.TaskRegression, models.TaskClassification}
)

// registry lists every algorithm in catalogue order.
var registry = []Entry{
	{
		Key:   KeyLinearRegression,
		Name:  "LinearRegression",
		Tasks: regressionOnly,
		New:   func(models.TaskType, Params) Trainable { return NewLinearRegression() },
	},
	{
		Key:      KeyLogisticRegression,
		Name:     "LogisticRegression",
		Tasks:    classificationOnly,
		Defaults: Params{MaxIter: 100, L2: 1.0},
		New:      func(_ models.TaskType, p Params) Trainable { return NewLogisticRegression(p) },
	},
	{
		Key:      KeyDecisionTree,
		Name:     "DecisionTree",
		Tasks:    bothTasks,
		Defaults: Params{MaxDepth: 10, MinSamplesSplit: 2},
		New:      func(t models.TaskType, p Params) Trainable { return NewDecisionTree(t, p) },
	},
	{
		Key:      KeyRandomForest,
		Name:     "RandomForest",
		Tasks:    bothTasks,
		Defaults: Params{NEstimators: 100, MaxDepth: 10, MinSamplesSplit: 2},
		New:      func(t models.TaskType, p Params) Trainable { return NewRandomForest(t, p) },
	},
	{
		Key:      KeyGradientBoosting,
		Name:     "GradientBoosting",
		Tasks:    bothTasks,
		Defaults: Params{NEstimators: 100, LearningRate: DefaultLearningRate, MaxDepth: 3, MinSamplesSplit: 2},
		New:      func(t models.TaskType, p Params) Trainable { return NewGradientBoosting(t, p) },
	},
	{
		Key:      KeyXGBoost,
		Name:     "XGBoost",
		Tasks:    bothTasks,
		Defaults: Params{NEstimators: 100, LearningRate: DefaultLearningRate, MaxDepth: 6, Lambda: 1},
		New:      func(t models.TaskType, p Params) Trainable { return NewXGBoost(t, p) },
	},
}

// Registry returns a copy of the full catalogue.
func Registry() []Entry {
	return append([]Entry(nil), registry...)
}

// LookupKey returns the catalogue entry for a configuration key.
func LookupKey(key string) (Entry, bool) {
	for _, e := range registry {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Candidate is a catalogue entry resolved for a task, with its final
// hyperparameters. New returns a fresh unfitted model on each call.
type Candidate struct {
	Key    string
	Name   string
	Task   models.TaskType
	Params Params
	// Factory builds the model. Nil falls back to the registry entry for Key.
	Factory func(task models.TaskType, p Params) Trainable
}

// New builds a fresh unfitted model.
func (c Candidate) New() Trainable {
	if c.Factory != nil {
		return c.Factory(c.Task, c.Params)
	}
	e, _ := LookupKey(c.Key)
	return e.New(c.Task, c.Params)
}

// Options controls catalogue construction.
type Options struct {
	Seed uint64
	// Disabled keys are treated as not installed.
	Disabled map[string]bool
	// Overrides are merged over each entry's defaults.
	Overrides map[string]Params
}

// Catalogue returns the candidates applicable to task in catalogue order
// together with one ErrAlgorithmUnavailable error per disabled entry.
func Catalogue(task models.TaskType, opts Options) ([]Candidate, []error, error) {
	if !task.Valid() {
		return nil, nil, utils.InvalidInput("learn.Catalogue", "unsupported task type %q", task)
	}
	for key := range opts.Overrides {
		if _, ok := LookupKey(key); !ok {
			return nil, nil, utils.InvalidInput("learn.Catalogue", "unknown algorithm %q", key)
		}
	}

	var (
		out         []Candidate
		unavailable []error
	)
	for _, e := range registry {
		if !e.supports(task) {
			continue
		}
		if opts.Disabled[e.Key] {
			unavailable = append(unavailable, utils.NewAppError("learn.Catalogue", utils.ErrAlgorithmUnavailable, fmt.Sprintf("%s is not available", e.Name), nil))
			continue
		}
		p := e.Defaults.Merge(opts.Overrides[e.Key])
		p.Seed = opts.Seed
		out = append(out, Candidate{Key: e.Key, Name: e.Name, Task: task, Params: p, Factory: e.New})
	}
	return out, unavailable, nil
}
