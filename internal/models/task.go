package models

import "fmt"

// TaskType determines metric vocabulary and selection key.
type TaskType string

const (
	TaskRegression     TaskType = "regression"
	TaskClassification TaskType = "classification"
)

// Metric names.
const (
	MetricRMSE      = "rmse"
	MetricR2        = "r2"
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
)

// ParseTaskType validates a task type string.
func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case TaskRegression, TaskClassification:
		return TaskType(s), nil
	default:
		return "", fmt.Errorf("unsupported task type %q", s)
	}
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t == TaskRegression || t == TaskClassification
}

// SelectionMetric returns the metric that ranks candidates for t: r2 for
// regression, f1 for classification. Empty for unknown task types.
func SelectionMetric(t TaskType) string {
	switch t {
	case TaskRegression:
		return MetricR2
	case TaskClassification:
		return MetricF1
	default:
		return ""
	}
}

// MetricNames is the fixed metric vocabulary computed for t.
func MetricNames(t TaskType) []string {
	switch t {
	case TaskRegression:
		return []string{MetricRMSE, MetricR2}
	case TaskClassification:
		return []string{MetricAccuracy, MetricPrecision, MetricRecall, MetricF1}
	default:
		return nil
	}
}
