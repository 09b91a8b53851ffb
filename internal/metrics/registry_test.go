package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticGauge struct {
	capacity int
	tokens   float64
}

func (g staticGauge) Capacity() int   { return g.capacity }
func (g staticGauge) Tokens() float64 { return g.tokens }

func TestSnapshot(t *testing.T) {
	r := NewRegistry()
	r.SetGlobal(staticGauge{capacity: 100, tokens: 42.7})

	r.LinkStored()
	r.LinkStored()
	r.LinkResolved()
	r.Admitted()
	r.GlobalRejected()
	r.ClientRejected()
	r.ClientRejected()
	r.ClientAdded()
	r.ClientAdded()
	r.ClientEvicted()

	s := r.Snapshot()
	assert.Equal(t, 100, s.GlobalCapacity)
	assert.Equal(t, 42, s.GlobalTokensAvailable)
	assert.Equal(t, 58, s.GlobalTokensUsed)
	assert.EqualValues(t, 1, s.ActiveClientCount)
	assert.EqualValues(t, 2, s.TotalLinksStored)
	assert.EqualValues(t, 1, s.LinksResolved)
	assert.EqualValues(t, 1, s.Admitted)
	assert.EqualValues(t, 1, s.GlobalRejected)
	assert.EqualValues(t, 2, s.ClientRejected)
}

func TestSnapshotWithoutGlobal(t *testing.T) {
	r := NewRegistry()
	r.SetLinksStored(7)

	s := r.Snapshot()
	assert.Zero(t, s.GlobalCapacity)
	assert.EqualValues(t, 7, s.TotalLinksStored)
}

func TestRegistryConcurrentUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.LinkStored()
				r.Admitted()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := r.Snapshot()
	assert.EqualValues(t, 1000, s.TotalLinksStored)
	assert.EqualValues(t, 1000, s.Admitted)
}

func TestCollector(t *testing.T) {
	r := NewRegistry()
	r.SetGlobal(staticGauge{capacity: 10, tokens: 4})
	r.LinkStored()

	// 5 одиночных метрик + 3 исхода решения
	assert.Equal(t, 8, testutil.CollectAndCount(NewCollector(r)))
}

func TestExporterHandler(t *testing.T) {
	r := NewRegistry()
	r.SetGlobal(staticGauge{capacity: 10, tokens: 4})
	r.Admitted()

	e := NewExporter(r)
	e.HTTP.Observe(http.MethodGet, "/s/{code}", http.StatusFound, 5*time.Millisecond)

	rr := httptest.NewRecorder()
	e.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "shortener_global_bucket_capacity 10")
	assert.Contains(t, body, `shortener_limiter_decisions_total{outcome="admitted"} 1`)
	assert.True(t, strings.Contains(body, `shortener_http_requests_total{method="GET",route="/s/{code}",status="302"} 1`))
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	assert.NotPanics(t, func() {
		m.Observe(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
}
