package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

const sampleVTT = `WEBVTT

1
00:00:01.000 --> 00:00:04.000
<v Instructor>Welcome to lecture one.

2
00:00:05.000 --> 00:00:09.500
Today we cover retrieval.

3
00:01:10.000 --> 00:01:15.000
Now a new topic begins.
`

func TestParseVTT(t *testing.T) {
	cues, err := parseVTT(strings.NewReader(sampleVTT), "track.vtt")
	require.NoError(t, err)
	require.Len(t, cues, 3)

	assert.Equal(t, time.Second, cues[0].start)
	assert.Equal(t, 4*time.Second, cues[0].end)
	assert.Equal(t, "Welcome to lecture one.", cues[0].text, "voice tags stripped")
	assert.Equal(t, "Today we cover retrieval.", cues[1].text)
}

func TestParseVTT_NotVTT(t *testing.T) {
	_, err := parseVTT(strings.NewReader("1\n00:00:01,000 --> 00:00:02,000\nan srt file\n"), "track.srt")
	assert.ErrorIs(t, err, domain.ErrParseError)
}

func TestGroupCues_WindowsAndTimestampRanges(t *testing.T) {
	cues, err := parseVTT(strings.NewReader(sampleVTT), "track.vtt")
	require.NoError(t, err)

	units := groupCues(cues, 30*time.Second, SourceMeta{URL: "https://cdn.example.com/track.vtt"})
	require.Len(t, units, 2, "third cue starts a new 30s window")

	assert.Equal(t, "Welcome to lecture one. Today we cover retrieval.", units[0].Text)
	assert.Equal(t, "00:00:01-00:00:09", units[0].Source.TimestampRange)
	assert.Equal(t, "00:01:10-00:01:15", units[1].Source.TimestampRange)
}

func TestVideoPlugin_Ingest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleVTT)
	}))
	defer srv.Close()

	plugin := NewVideoPlugin(srv.Client())
	params, err := ValidateParams(plugin.Schema(), map[string]any{"window_seconds": 3600})
	require.NoError(t, err)

	units, err := plugin.Ingest(context.Background(), Source{URL: srv.URL, Filename: "lecture-1"}, params)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Contains(t, units[0].Text, "Welcome to lecture one.")
	assert.Equal(t, "00:00:01-00:01:15", units[0].Source.TimestampRange)
}

func TestVideoPlugin_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	plugin := NewVideoPlugin(srv.Client())
	params, err := ValidateParams(plugin.Schema(), nil)
	require.NoError(t, err)

	_, err = plugin.Ingest(context.Background(), Source{URL: srv.URL}, params)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
