package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type stubCounter struct {
	counts map[string]int64
	err    error
}

func (s stubCounter) Count(context.Context) (map[string]int64, error) {
	return s.counts, s.err
}

func TestDocumentCollectorReportsCounts(t *testing.T) {
	c := &documentCollector{
		counter: stubCounter{counts: map[string]int64{"sites": 3, "settings": 1}},
		logger:  zap.NewNop(),
		desc:    prometheus.NewDesc("terralens_documents", "Stored documents by collection", []string{"collection"}, nil),
	}
	expected := `
# HELP terralens_documents Stored documents by collection
# TYPE terralens_documents gauge
terralens_documents{collection="settings"} 1
terralens_documents{collection="sites"} 3
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestDocumentCollectorSkipsOnError(t *testing.T) {
	c := &documentCollector{
		counter: stubCounter{err: errors.New("db down")},
		logger:  zap.NewNop(),
		desc:    prometheus.NewDesc("terralens_documents", "Stored documents by collection", []string{"collection"}, nil),
	}
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no samples, got %d", n)
	}
}

func TestObserveBeforeInitIsSafe(t *testing.T) {
	ObserveSiteWrite("create", "")
	ObserveFlow("", ResultError, 0)
	IncNotification("")
}
