package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"schoolboard/internal/store"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schoolboard",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "schoolboard",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	storeOps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "schoolboard",
		Name:      "store_operation_duration_seconds",
		Help:      "Document store latency by operation, collection and outcome.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op", "collection", "outcome"})

	// RenumberPasses counts roster renumbering passes after a delete.
	RenumberPasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "schoolboard",
		Name:      "roster_renumber_passes_total",
		Help:      "Roster renumbering passes run after a student delete.",
	})

	// RenumberedStudents counts student records rewritten by renumbering.
	RenumberedStudents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "schoolboard",
		Name:      "roster_renumbered_students_total",
		Help:      "Student records whose grNo or rollNo changed during renumbering.",
	})

	// FeedSubscribers tracks open live-feed streams.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "schoolboard",
		Name:      "feed_subscribers",
		Help:      "Open live student feed subscriptions.",
	})
)

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrExists):
		return "exists"
	}
	return "error"
}

func observe(op, collection string, start time.Time, err error) {
	storeOps.WithLabelValues(op, collection, outcome(err)).Observe(time.Since(start).Seconds())
}

// Instrumented times every document store call.
type Instrumented struct {
	store.Store
}

// Instrument wraps s with latency metrics.
func Instrument(s store.Store) *Instrumented {
	return &Instrumented{Store: s}
}

func (i *Instrumented) Create(ctx context.Context, collection, id string, data any) (string, error) {
	start := time.Now()
	id, err := i.Store.Create(ctx, collection, id, data)
	observe("create", collection, start, err)
	return id, err
}

func (i *Instrumented) Get(ctx context.Context, collection, id string) (store.Doc, error) {
	start := time.Now()
	doc, err := i.Store.Get(ctx, collection, id)
	observe("get", collection, start, err)
	return doc, err
}

func (i *Instrumented) List(ctx context.Context, collection string, filters ...store.Filter) ([]store.Doc, error) {
	start := time.Now()
	docs, err := i.Store.List(ctx, collection, filters...)
	observe("list", collection, start, err)
	return docs, err
}

func (i *Instrumented) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	start := time.Now()
	err := i.Store.Update(ctx, collection, id, fields)
	observe("update", collection, start, err)
	return err
}

func (i *Instrumented) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, collection, id)
	observe("delete", collection, start, err)
	return err
}

func (i *Instrumented) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	start := time.Now()
	err := i.Store.RunInTx(ctx, fn)
	observe("tx", "", start, err)
	return err
}
