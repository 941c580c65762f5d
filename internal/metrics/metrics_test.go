package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolboard/internal/store"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{errors.Wrap(store.ErrNotFound, "students/x"), "not_found"},
		{store.ErrConflict, "conflict"},
		{store.ErrExists, "exists"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, outcome(tt.err))
		})
	}
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	s := Instrument(store.NewMemory())

	id, err := s.Create(ctx, "metrics_test", "", map[string]any{"name": "Sara"})
	require.NoError(t, err)
	doc, err := s.Get(ctx, "metrics_test", id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)

	_, err = s.Get(ctx, "metrics_test", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(storeOps), 2)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/ping", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")))
}
