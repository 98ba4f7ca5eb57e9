// Package transcript flattens subtitle-formatted clip transcripts (WebVTT,
// SRT, JSON segment lists) into plain text with optional cue timings.
package transcript

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Format is the detected layout of a transcript.
type Format string

const (
	FormatVTT  Format = "vtt"
	FormatSRT  Format = "srt"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Segment is one timed cue.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Transcript is a parsed transcript.
type Transcript struct {
	Format   Format
	Segments []Segment
	Text     string
}

var (
	cueTiming  = regexp.MustCompile(`^((?:\d{1,2}:)?\d{2}:\d{2}[.,]\d{3})\s*-->\s*((?:\d{1,2}:)?\d{2}:\d{2}[.,]\d{3})`)
	markupTags = regexp.MustCompile(`</?[a-zA-Z][^>]*>|\{\\[^}]*\}`)
)

// Detect guesses the format of content.
func Detect(content string) Format {
	trimmed := strings.TrimSpace(strings.TrimPrefix(content, "\ufeff"))
	switch {
	case strings.HasPrefix(trimmed, "WEBVTT"):
		return FormatVTT
	case strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{"):
		if json.Valid([]byte(trimmed)) {
			return FormatJSON
		}
	}
	for _, line := range strings.SplitN(trimmed, "\n", 4) {
		if cueTiming.MatchString(strings.TrimSpace(line)) {
			return FormatSRT
		}
	}
	return FormatText
}

// Parse detects the format of content and parses it. Content that is not
// recognizably subtitles is returned as plain text with no segments.
func Parse(content string) *Transcript {
	content = strings.ReplaceAll(strings.TrimPrefix(content, "\ufeff"), "\r\n", "\n")
	switch format := Detect(content); format {
	case FormatVTT, FormatSRT:
		return parseCues(content, format)
	case FormatJSON:
		if t, ok := parseJSON(content); ok {
			return t
		}
	}
	return &Transcript{Format: FormatText, Text: collapse(content)}
}

// PlainText returns the spoken text of content without cue numbers, timings
// or markup.
func PlainText(content string) string {
	return Parse(content).Text
}

// parseCues handles both WebVTT and SRT: a timing line opens a cue and a
// blank line closes it.
func parseCues(content string, format Format) *Transcript {
	t := &Transcript{Format: format}
	var (
		current *Segment
		lines   []string
	)
	flush := func() {
		if current != nil && len(lines) > 0 {
			current.Text = collapse(strings.Join(lines, " "))
			if current.Text != "" {
				t.Segments = append(t.Segments, *current)
			}
		}
		current, lines = nil, nil
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flush()
		case current == nil:
			if m := cueTiming.FindStringSubmatch(line); m != nil {
				current = &Segment{Start: parseTimestamp(m[1]), End: parseTimestamp(m[2])}
			}
			// Headers, NOTE blocks, cue numbers and identifiers are skipped
		default:
			lines = append(lines, markupTags.ReplaceAllString(line, ""))
		}
	}
	flush()

	texts := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		texts[i] = s.Text
	}
	t.Text = strings.Join(texts, " ")
	return t
}

type jsonSegment struct {
	Start     float64 `json:"start"`
	StartTime float64 `json:"startTime"`
	End       float64 `json:"end"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
	Body      string  `json:"body"`
}

func parseJSON(content string) (*Transcript, bool) {
	var segments []jsonSegment
	if err := json.Unmarshal([]byte(content), &segments); err != nil {
		var wrapped struct {
			Text     string        `json:"text"`
			Segments []jsonSegment `json:"segments"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, false
		}
		if len(wrapped.Segments) == 0 && wrapped.Text != "" {
			return &Transcript{Format: FormatJSON, Text: collapse(wrapped.Text)}, true
		}
		segments = wrapped.Segments
	}

	t := &Transcript{Format: FormatJSON}
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		text := s.Text
		if text == "" {
			text = s.Body
		}
		text = collapse(markupTags.ReplaceAllString(text, ""))
		if text == "" {
			continue
		}
		start, end := s.Start, s.End
		if start == 0 {
			start = s.StartTime
		}
		if end == 0 {
			end = s.EndTime
		}
		t.Segments = append(t.Segments, Segment{
			Start: time.Duration(start * float64(time.Second)),
			End:   time.Duration(end * float64(time.Second)),
			Text:  text,
		})
		texts = append(texts, text)
	}
	t.Text = strings.Join(texts, " ")
	return t, true
}

// parseTimestamp reads HH:MM:SS.mmm, MM:SS.mmm or the SRT comma variants.
func parseTimestamp(ts string) time.Duration {
	ts = strings.Replace(ts, ",", ".", 1)
	parts := strings.Split(ts, ":")
	var d time.Duration
	for i, p := range parts {
		if i == len(parts)-1 {
			secs, _ := strconv.ParseFloat(p, 64)
			d += time.Duration(secs * float64(time.Second))
			continue
		}
		n, _ := strconv.Atoi(p)
		unit := time.Minute
		if len(parts)-i == 3 {
			unit = time.Hour
		}
		d += time.Duration(n) * unit
	}
	return d.Round(time.Millisecond)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
