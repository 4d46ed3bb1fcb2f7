package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObserveFitCountsOutcome(t *testing.T) {
	before := testutil.ToFloat64(fitsTotal.WithLabelValues("premium", "DecisionTree", OutcomeError))
	ObserveFit("premium", "DecisionTree", 10*time.Millisecond, OutcomeError)
	after := testutil.ToFloat64(fitsTotal.WithLabelValues("premium", "DecisionTree", OutcomeError))
	if after != before+1 {
		t.Fatalf("expected error counter to increase by 1, got %v -> %v", before, after)
	}

	before = testutil.ToFloat64(fitsTotal.WithLabelValues("premium", "DecisionTree", OutcomeSuccess))
	ObserveFit("premium", "DecisionTree", -time.Second, "bogus")
	after = testutil.ToFloat64(fitsTotal.WithLabelValues("premium", "DecisionTree", OutcomeSuccess))
	if after != before+1 {
		t.Fatalf("unknown outcome should count as success, got %v -> %v", before, after)
	}
}

func TestObserveSelectionSetsGauge(t *testing.T) {
	ObserveSelection("severity", "r2", 0.85)
	if got := testutil.ToFloat64(selectedScore.WithLabelValues("severity", "r2")); got != 0.85 {
		t.Fatalf("expected gauge 0.85, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	ObserveRun(OutcomeSuccess)

	path := filepath.Join(t.TempDir(), "riskmodel.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "riskmodel_runs_total") {
		t.Fatalf("textfile missing runs counter:\n%s", data)
	}
}
