package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Imagenes.ElPais.com/x.jpg", "imagenes.elpais.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveHelpersInitLazily(t *testing.T) {
	ObserveArticle("extracted")
	ObserveArticle("extracted")
	ObserveTranslation("failed")
	ObserveImageDownload("https://img.test/a.jpg", "stored", 10)
	ObserveRateLimitDelay("translate", 500*time.Millisecond)
	ObserveSession("Chrome - Windows 11", "succeeded")
	IncActiveSessions()
	DecActiveSessions()

	assert.Equal(t, float64(2), testutil.ToFloat64(articlesTotal.WithLabelValues("extracted")))
	assert.Equal(t, float64(10), testutil.ToFloat64(imageBytesTotal.WithLabelValues("img.test")))
	assert.Equal(t, float64(0), testutil.ToFloat64(activeSessions))
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	ts := httptest.NewServer(NewRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	ObserveTranslation("ok")
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), "opinion_translations_total")

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), float64(1))
}
