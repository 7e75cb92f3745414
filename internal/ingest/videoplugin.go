package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

const defaultCaptionWindowSeconds = 60

// VideoPlugin resolves a caption/transcript track for a video and converts
// it into text units, each carrying the timestamp range it covers. The
// source URL must point at a WebVTT track; grouping into units is controlled
// by window_seconds.
type VideoPlugin struct {
	client *http.Client
}

func NewVideoPlugin(client *http.Client) *VideoPlugin {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &VideoPlugin{client: client}
}

func (p *VideoPlugin) Name() string { return "video-transcript" }

func (p *VideoPlugin) Description() string {
	return "Resolves a WebVTT caption track and yields transcript units with timestamp ranges"
}

func (p *VideoPlugin) Schema() Schema {
	return Schema{
		"window_seconds": {
			Type:        ParamInteger,
			Description: "Length of transcript covered by one text unit, in seconds",
			Default:     defaultCaptionWindowSeconds,
		},
		"language": {
			Type:        ParamString,
			Description: "Caption language hint recorded on the units",
			Default:     "en",
		},
	}
}

// vttCue is one parsed caption cue.
type vttCue struct {
	start time.Duration
	end   time.Duration
	text  string
}

func (p *VideoPlugin) Ingest(ctx context.Context, src Source, params Params) ([]TextUnit, error) {
	trackURL := strings.TrimSpace(src.URL)
	if trackURL == "" {
		return nil, invalidParam("url", "video plugin requires a caption track URL")
	}

	window := params.Int("window_seconds")
	if window <= 0 {
		window = defaultCaptionWindowSeconds
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, sourceUnavailable(trackURL, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, sourceUnavailable(trackURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, sourceUnavailable(trackURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	cues, err := parseVTT(resp.Body, trackURL)
	if err != nil {
		return nil, err
	}

	return groupCues(cues, time.Duration(window)*time.Second, SourceMeta{
		URL:      trackURL,
		Filename: src.Filename,
	}), nil
}

// parseVTT reads a WebVTT stream into cues. Cue settings after the timing
// line and inline voice/markup tags are dropped; only the spoken text is
// kept.
func parseVTT(r io.Reader, source string) ([]vttCue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []vttCue
	var current *vttCue
	sawHeader := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if !sawHeader {
			if !strings.HasPrefix(line, "WEBVTT") {
				return nil, domain.NewDomainErrorWithCause(domain.ErrCodeParseError,
					fmt.Sprintf("%s: not a WebVTT track", source), domain.ErrParseError)
			}
			sawHeader = true
			continue
		}

		if line == "" {
			if current != nil && current.text != "" {
				cues = append(cues, *current)
			}
			current = nil
			continue
		}

		if strings.Contains(line, "-->") {
			parts := strings.SplitN(line, "-->", 2)
			start, err1 := parseVTTTimestamp(strings.TrimSpace(parts[0]))
			endField := strings.Fields(strings.TrimSpace(parts[1]))
			if len(endField) == 0 {
				continue
			}
			end, err2 := parseVTTTimestamp(endField[0])
			if err1 != nil || err2 != nil {
				continue
			}
			current = &vttCue{start: start, end: end}
			continue
		}

		if current != nil {
			text := stripVTTTags(line)
			if text == "" {
				continue
			}
			if current.text != "" {
				current.text += " "
			}
			current.text += text
		}
		// Lines outside a cue (identifiers, NOTE blocks) are ignored.
	}
	if current != nil && current.text != "" {
		cues = append(cues, *current)
	}

	if err := scanner.Err(); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeParseError,
			fmt.Sprintf("%s: failed to read caption track", source), domain.ErrParseError)
	}
	return cues, nil
}

// parseVTTTimestamp accepts hh:mm:ss.mmm and mm:ss.mmm forms.
func parseVTTTimestamp(s string) (time.Duration, error) {
	var h, m int
	var sec float64

	if n, _ := fmt.Sscanf(s, "%d:%d:%f", &h, &m, &sec); n == 3 {
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
			time.Duration(sec*float64(time.Second)), nil
	}
	if n, _ := fmt.Sscanf(s, "%d:%f", &m, &sec); n == 2 {
		return time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), nil
	}
	return 0, fmt.Errorf("bad timestamp %q", s)
}

// stripVTTTags removes <v Speaker>, <i>, timestamps-in-cue and similar
// angle-bracket markup.
func stripVTTTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

// groupCues merges consecutive cues into units no longer than window,
// labelling each unit with the timestamp range it spans.
func groupCues(cues []vttCue, window time.Duration, meta SourceMeta) []TextUnit {
	var units []TextUnit
	var texts []string
	var windowStart, windowEnd time.Duration
	open := false

	flush := func() {
		if !open || len(texts) == 0 {
			return
		}
		m := meta
		m.TimestampRange = fmt.Sprintf("%s-%s", formatOffset(windowStart), formatOffset(windowEnd))
		units = append(units, TextUnit{Text: strings.Join(texts, " "), Source: m})
		texts = nil
		open = false
	}

	for _, cue := range cues {
		if open && cue.end-windowStart > window {
			flush()
		}
		if !open {
			windowStart = cue.start
			open = true
		}
		windowEnd = cue.end
		texts = append(texts, cue.text)
	}
	flush()

	return units
}

func formatOffset(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
