package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DocumentCounter reports documents per collection.
type DocumentCounter interface {
	Count(ctx context.Context) (map[string]int64, error)
}

type documentCollector struct {
	counter DocumentCounter
	logger  *zap.Logger
	desc    *prometheus.Desc
}

func registerDocumentMetrics(counter DocumentCounter, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prometheus.MustRegister(&documentCollector{
		counter: counter,
		logger:  logger,
		desc: prometheus.NewDesc(
			metricPrefix+"documents",
			"Stored documents by collection",
			[]string{"collection"},
			nil,
		),
	})
}

func (c *documentCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *documentCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	counts, err := c.counter.Count(ctx)
	if err != nil {
		c.logger.Warn("metrics document count failed", zap.Error(err))
		return
	}
	for collection, n := range counts {
		if n < 0 {
			n = 0
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), collection)
	}
}
