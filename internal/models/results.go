package models

import "time"

// Predictor is the read-only view of a fitted estimator held by a TrainingResult.
type Predictor interface {
	Name() string
	Predict(X [][]float64) ([]float64, error)
}

// TrainingResult is the outcome of fitting one catalogue entry.
type TrainingResult struct {
	ModelName    string
	TaskType     TaskType
	Model        Predictor
	TrainMetrics map[string]float64
	TestMetrics  map[string]float64
	FitDuration  time.Duration
}

// TestScore returns the test-split value of metric and whether it was present.
func (r TrainingResult) TestScore(metric string) (float64, bool) {
	v, ok := r.TestMetrics[metric]
	return v, ok
}

// RankingEntry is one row of a model ranking.
type RankingEntry struct {
	Rank      int     `json:"rank"`
	ModelName string  `json:"model_name"`
	Score     float64 `json:"score"`
}

// DecisionSummary is the persisted audit record of a selection.
type DecisionSummary struct {
	SelectedModel  string         `json:"selected_model"`
	TaskType       TaskType       `json:"task_type"`
	MetricName     string         `json:"metric_name"`
	MetricScore    float64        `json:"metric_score"`
	Timestamp      string         `json:"timestamp"`
	BusinessImpact string         `json:"business_impact"`
	ModelRankings  []RankingEntry `json:"model_rankings"`
}
