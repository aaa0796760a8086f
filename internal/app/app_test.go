package app_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/app"
	"github.com/JakeFAU/opinion-crawler/internal/config"
	"github.com/JakeFAU/opinion-crawler/internal/crawler"
	pubmemory "github.com/JakeFAU/opinion-crawler/internal/publisher/memory"
	"github.com/JakeFAU/opinion-crawler/internal/report"
	"github.com/JakeFAU/opinion-crawler/internal/storage/memory"
	"github.com/JakeFAU/opinion-crawler/internal/store"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	long := strings.Repeat("Un texto de opinión con longitud suficiente. ", 3)
	article := func(title, img string) string {
		return fmt.Sprintf(`<html><body><article><h1>%s</h1>
<figure><img src="%s"></figure><p>%s</p></article></body></html>`, title, img, long)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body><button>Accept</button><a href="/opinion/">Opinión</a></body></html>`))
	})
	mux.HandleFunc("/opinion/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<article><h2><a href="/opinion/2024-05-01/uno.html">Uno</a></h2></article>
<article><h2><a href="/opinion/2024-05-02/dos.html">Dos</a></h2></article>
</body></html>`))
	})
	mux.HandleFunc("/opinion/2024-05-01/uno.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(article("La casa de la casa", "/img/uno.jpg")))
	})
	mux.HandleFunc("/opinion/2024-05-02/dos.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(article("Otra casa", "/img/missing.jpg")))
	})
	mux.HandleFunc("/img/uno.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-uno"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type stubTranslator map[string]string

func (s stubTranslator) TranslateToEnglish(_ context.Context, text string) (string, error) {
	return s[text], nil
}

func testConfig(baseURL, imagesDir string) config.Config {
	return config.Config{
		Site: config.SiteConfig{
			BaseURL:     baseURL,
			SectionName: "Opinión",
			SectionPath: "/opinion",
			ConsentText: "Accept",
		},
		Scraper: config.ScraperConfig{
			WaitTimeout:    time.Second,
			ConsentTimeout: 100 * time.Millisecond,
			MaxArticles:    5,
		},
		Grid: config.GridConfig{Driver: config.DriverStatic, NavigationTimeout: 5 * time.Second},
		Targets: []crawler.BrowserTarget{
			{SessionName: "Chrome - Windows"},
			{SessionName: "iPhone 14"},
		},
		Translate: config.TranslateConfig{APIKey: "k", Delay: 0, Timeout: time.Second},
		Images:    config.ImagesConfig{Provider: config.ImagesLocal, Dir: imagesDir, Timeout: 5 * time.Second},
		PubSub:    config.PubSubConfig{Topic: "reports"},
	}
}

func TestRunEndToEndWithStaticDriver(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	imagesDir := filepath.Join(t.TempDir(), "images")
	var out bytes.Buffer
	reports := memory.NewReportStore()
	publisher := pubmemory.New()
	translator := stubTranslator{
		"La casa de la casa": "The house of the house",
		"Otra casa":          "Another house",
	}

	a, err := app.New(context.Background(), testConfig(srv.URL+"/", imagesDir), zap.NewNop(),
		app.WithPrinter(report.NewPrinter(&out)),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithReportStore(reports),
		app.WithPublisher(publisher),
		app.WithTranslators(func(string) crawler.Translator { return translator }),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, a.RunID())
	assert.Len(t, a.Targets(), 2)

	outcomes, err := a.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, crawler.SessionStatusSucceeded, o.Report.Status)
		assert.Equal(t, a.RunID(), o.Report.RunID)
		require.Len(t, o.Report.Rows, 2)
		assert.Equal(t, map[string]int{"house": 3}, o.Report.RepeatedWords)
	}

	content, err := os.ReadFile(filepath.Join(imagesDir, "article_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-uno", string(content))
	_, err = os.Stat(filepath.Join(imagesDir, "article_2.jpg"))
	assert.True(t, os.IsNotExist(err), "a 404 image must not be stored")

	assert.Len(t, reports.Reports(), 2)
	assert.Len(t, publisher.Reports("reports"), 2)
	assert.Equal(t, 2, strings.Count(out.String(), "REPEATED WORD ANALYSIS (>2)"))
	assert.Contains(t, out.String(), "house → 3")

	sessions, err := a.Status().ListSessions(context.Background(), nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, store.RunSuccess, s.Status)
		assert.Equal(t, 2, s.Done)
	}
}

func TestNewRejectsBadBackends(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://localhost/", t.TempDir())
	cfg.Grid.Driver = "selenium"
	_, err := app.New(context.Background(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)

	cfg = testConfig("http://localhost/", t.TempDir())
	cfg.Grid.Driver = config.DriverRemote
	_, err = app.New(context.Background(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "credentials")

	cfg = testConfig("http://localhost/", t.TempDir())
	cfg.Images.Provider = "s3"
	_, err = app.New(context.Background(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
}
