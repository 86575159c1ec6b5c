package db

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPoolStatsCollector_Describe(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "minutes", "history")

	ch := make(chan *prometheus.Desc, 10)
	collector.Describe(ch)
	close(ch)

	expected := []string{
		"minutes_db_pool_total_conns",
		"minutes_db_pool_idle_conns",
		"minutes_db_pool_acquired_conns",
		"minutes_db_pool_max_conns",
	}
	var i int
	for desc := range ch {
		s := desc.String()
		if !strings.Contains(s, expected[i]) {
			t.Errorf("descriptor %d = %s, want %s", i, s, expected[i])
		}
		if !strings.Contains(s, `store="history"`) {
			t.Errorf("descriptor missing store label: %s", s)
		}
		i++
	}
	if i != 4 {
		t.Errorf("expected 4 descriptors, got %d", i)
	}
}

func TestPoolStatsCollector_Collect_NilPool(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "minutes", "history")

	ch := make(chan prometheus.Metric, 10)
	collector.Collect(ch)
	close(ch)

	if n := len(ch); n != 0 {
		t.Errorf("expected 0 metrics for nil pool, got %d", n)
	}
}

func TestRegisterPoolStats_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	if _, err := RegisterPoolStats(reg, nil, "minutes", "history"); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := RegisterPoolStats(reg, nil, "minutes", "history"); err != nil {
		t.Fatalf("second registration should not error: %v", err)
	}
	if _, err := RegisterPoolStats(nil, nil, "minutes", "history"); err != nil {
		t.Fatalf("nil registerer should not error: %v", err)
	}
}

func TestPoolStatsCollector_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewPoolStatsCollector(nil, "minutes", "history"))
	if err != nil {
		t.Fatalf("CollectAndLint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint problem: %s", p.Text)
	}
}
