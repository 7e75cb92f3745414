package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

func crawlSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<p>Welcome to the course site.</p>
			<a href="/syllabus">Syllabus</a>
			<a href="/syllabus#week1">Syllabus week 1</a>
			<a href="mailto:prof@example.edu">Mail</a>
			<a href="https://other.example.com/away">External</a>
		</body></html>`)
	})
	mux.HandleFunc("/syllabus", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<p>Week 1: introductions.</p>
			<a href="/reading">Reading list</a>
		</body></html>`)
	})
	mux.HandleFunc("/reading", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Chapter one.</p></body></html>`)
	})
	return httptest.NewServer(mux)
}

func TestWebPlugin_SinglePage(t *testing.T) {
	srv := crawlSite(t)
	defer srv.Close()

	plugin := NewWebPlugin(srv.Client())
	params, err := ValidateParams(plugin.Schema(), nil)
	require.NoError(t, err)

	units, err := plugin.Ingest(context.Background(), Source{URL: srv.URL}, params)
	require.NoError(t, err)
	require.Len(t, units, 1, "depth 0 fetches only the start page")
	assert.Contains(t, units[0].Text, "Welcome to the course site")
	assert.Equal(t, srv.URL, units[0].Source.URL)
}

func TestWebPlugin_CrawlDeduplicatesAndStaysOnHost(t *testing.T) {
	srv := crawlSite(t)
	defer srv.Close()

	plugin := NewWebPlugin(srv.Client())
	params, err := ValidateParams(plugin.Schema(), map[string]any{"depth": 2})
	require.NoError(t, err)

	units, err := plugin.Ingest(context.Background(), Source{URL: srv.URL}, params)
	require.NoError(t, err)

	// Root, /syllabus (anchor variant deduplicated), /reading - and never
	// the external host.
	require.Len(t, units, 3)
	seen := map[string]bool{}
	for _, u := range units {
		seen[u.Source.URL] = true
		assert.NotContains(t, u.Source.URL, "other.example.com")
	}
	assert.True(t, seen[srv.URL+"/syllabus"])
	assert.True(t, seen[srv.URL+"/reading"])
}

func TestWebPlugin_MaxPagesBoundsCrawl(t *testing.T) {
	srv := crawlSite(t)
	defer srv.Close()

	plugin := NewWebPlugin(srv.Client())
	params, err := ValidateParams(plugin.Schema(), map[string]any{"depth": 5, "max_pages": 2})
	require.NoError(t, err)

	units, err := plugin.Ingest(context.Background(), Source{URL: srv.URL}, params)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(units), 2)
}

func TestWebPlugin_UnreachableSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	plugin := NewWebPlugin(srv.Client())
	params, err := ValidateParams(plugin.Schema(), nil)
	require.NoError(t, err)

	_, err = plugin.Ingest(context.Background(), Source{URL: srv.URL}, params)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestWebPlugin_MissingURL(t *testing.T) {
	plugin := NewWebPlugin(nil)
	params, err := ValidateParams(plugin.Schema(), nil)
	require.NoError(t, err)

	_, err = plugin.Ingest(context.Background(), Source{}, params)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}
