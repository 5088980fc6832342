package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	classificationStartedTotal   atomic.Uint64
	classificationCompletedTotal atomic.Uint64
	classificationFailedTotal    atomic.Uint64
	feedbackSubmittedTotal       atomic.Uint64
	optimizationRunsTotal        atomic.Uint64

	llmRequestDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncClassificationStarted increments the started counter.
func IncClassificationStarted() {
	classificationStartedTotal.Add(1)
}

// IncClassificationCompleted increments the completed counter.
func IncClassificationCompleted() {
	classificationCompletedTotal.Add(1)
}

// IncClassificationFailed increments the failed counter.
func IncClassificationFailed() {
	classificationFailedTotal.Add(1)
}

// IncFeedbackSubmitted increments the feedback counter.
func IncFeedbackSubmitted() {
	feedbackSubmittedTotal.Add(1)
}

// IncOptimizationRuns increments the optimization run counter.
func IncOptimizationRuns() {
	optimizationRunsTotal.Add(1)
}

// ObserveLLMRequestDurationMs records one LLM round trip in milliseconds.
func ObserveLLMRequestDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	llmRequestDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "classification_started_total", "Total classification tasks started", classificationStartedTotal.Load())
	writeCounter(&buf, "classification_completed_total", "Total classification tasks completed", classificationCompletedTotal.Load())
	writeCounter(&buf, "classification_failed_total", "Total classification tasks failed", classificationFailedTotal.Load())
	writeCounter(&buf, "feedback_submitted_total", "Total feedback submissions", feedbackSubmittedTotal.Load())
	writeCounter(&buf, "optimization_runs_total", "Total prompt optimization runs", optimizationRunsTotal.Load())
	writeHistogram(&buf, "llm_request_duration_ms", "LLM request duration in milliseconds", llmRequestDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
