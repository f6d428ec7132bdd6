package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestNew_BuildInfo(t *testing.T) {
	body := scrape(t, New(""))
	assert.Contains(t, body, `soil_build_info{version="dev"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRegisterer_ExposesComponentMetrics(t *testing.T) {
	p := New("test")
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "soil_test_total", Help: "test"})
	p.Registerer().MustRegister(c)
	c.Add(3)

	assert.Contains(t, scrape(t, p), "soil_test_total 3")
}

func TestMiddleware_LabelsRoutePattern(t *testing.T) {
	p := New("test")
	r := chi.NewRouter()
	r.Use(p.Middleware)
	r.Get("/v1/runs/{id}/cells", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/abc/cells", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	body := scrape(t, p)
	found := false
	for ln := range strings.SplitSeq(body, "\n") {
		if strings.HasPrefix(ln, "soil_http_request_duration_seconds_count{") &&
			strings.Contains(ln, `route="/v1/runs/{id}/cells"`) &&
			strings.Contains(ln, `code="404"`) {
			found = true
		}
	}
	assert.True(t, found, body)
}
