package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/riskstack/riskmodel/internal/utils"
)

// BenchmarkFile is the cross-task summary written next to the decision artifacts.
const BenchmarkFile = "model_benchmark_summary.json"

// Source yields the latest decision for a task.
type Source interface {
	Latest(ctx context.Context, task string) (Entry, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, task string) (Entry, error)

// Latest implements Source.
func (f SourceFunc) Latest(ctx context.Context, task string) (Entry, error) {
	return f(ctx, task)
}

// Benchmark maps "<task>_model" to the model most recently selected for task.
// Tasks without a recorded decision are skipped.
func Benchmark(ctx context.Context, src Source, tasks []string, logger *slog.Logger) (map[string]string, error) {
	const op = "history.Benchmark"
	if logger == nil {
		logger = slog.Default()
	}
	summary := make(map[string]string, len(tasks))
	for _, task := range tasks {
		entry, err := src.Latest(ctx, task)
		if errors.Is(err, utils.ErrNotFound) {
			logger.Warn("no decision recorded", slog.String("task", task))
			continue
		}
		if err != nil {
			return nil, err
		}
		summary[task+"_model"] = entry.Summary.SelectedModel
	}
	if len(summary) == 0 {
		return nil, utils.NewAppError(op, utils.ErrEmptyInput, "no decisions recorded", nil)
	}
	return summary, nil
}

// WriteBenchmark persists a benchmark summary as indented JSON.
func WriteBenchmark(path string, summary map[string]string) error {
	const op = "history.WriteBenchmark"
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return utils.NewAppError(op, utils.ErrInvalidInput, "encode benchmark", err)
	}
	return utils.WriteFileAtomic(op, path, append(data, '\n'))
}
