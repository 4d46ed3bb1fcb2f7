package utils

import (
	"sort"
	"sync"
	"time"
)

// FitTracker stores recent fit durations per algorithm and computes percentiles.
type FitTracker struct {
	mu      sync.RWMutex
	samples map[string][]time.Duration
	maxSize int
}

// NewFitTracker creates a tracker storing up to maxSize samples per algorithm.
func NewFitTracker(maxSize int) *FitTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &FitTracker{maxSize: maxSize, samples: make(map[string][]time.Duration)}
}

// Observe records a fit duration for the named algorithm.
func (l *FitTracker) Observe(model string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := append(l.samples[model], d)
	if len(s) > l.maxSize {
		// Drop oldest sample to bound memory.
		copy(s[0:], s[1:])
		s = s[:l.maxSize]
	}
	l.samples[model] = s
}

// Percentile returns the percentile (0-100) fit duration for model. Returns zero if no samples.
func (l *FitTracker) Percentile(model string, p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	samples := l.samples[model]
	if len(samples) == 0 {
		return 0
	}

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := int((p / 100.0) * float64(len(sorted)-1))
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// Count returns number of samples recorded for model.
func (l *FitTracker) Count(model string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples[model])
}

// Models lists algorithms with at least one sample, sorted by name.
func (l *FitTracker) Models() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.samples))
	for name := range l.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
