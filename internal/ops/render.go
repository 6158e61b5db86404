package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/transcript"
)

// Format is a transcript download format.
type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// ParseFormat validates a format name. Empty means txt.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatMarkdown, FormatHTML, FormatJSON:
		return f, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want txt, md, html or json)", s))
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename returns the download filename for a transcript key.
func (f Format) Filename(key string) string {
	if len(key) > 12 {
		key = key[:12]
	}
	return fmt.Sprintf("transcript-%s.%s", SanitizeForFilename(key), f)
}

// RenderTranscript renders rec as a download body.
func RenderTranscript(rec *transcript.Record, format Format) ([]byte, error) {
	if rec == nil {
		return nil, errors.NewInvalidRequest("record is required")
	}

	switch format {
	case FormatText, "":
		return []byte(rec.Text), nil
	case FormatMarkdown:
		return []byte(renderMarkdown(rec)), nil
	case FormatHTML:
		var body bytes.Buffer
		if err := goldmark.Convert([]byte(renderMarkdown(rec)), &body); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("render html: %w", err))
		}
		var doc bytes.Buffer
		doc.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Transcript</title></head><body>\n")
		doc.Write(body.Bytes())
		doc.WriteString("</body></html>\n")
		return doc.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		return append(data, '\n'), nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", format))
	}
}

// renderMarkdown lays out a record as a markdown document. Transcript text is
// escaped so that speech content is never interpreted as markup.
func renderMarkdown(rec *transcript.Record) string {
	var b strings.Builder
	b.WriteString("# Transcript\n\n")

	if rec.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(escapeMarkdown(rec.Summary))
		b.WriteString("\n\n")
	}

	if len(rec.Chapters) > 0 {
		b.WriteString("## Chapters\n\n")
		for _, c := range rec.Chapters {
			fmt.Fprintf(&b, "### %s (%s - %s)\n\n", escapeMarkdown(c.Headline), formatOffset(c.Start), formatOffset(c.End))
			if c.Summary != "" {
				b.WriteString(escapeMarkdown(c.Summary))
				b.WriteString("\n\n")
			}
		}
	}

	if stats := rec.SpeakerStats(); len(stats) > 0 {
		b.WriteString("## Speakers\n\n")
		for _, s := range stats {
			fmt.Fprintf(&b, "- **Speaker %s**: %s talk time (%.0f%%), %d words, %.0f words/min\n",
				escapeMarkdown(s.Speaker), formatOffset(s.TalkMs), s.Share*100, s.Words, s.WordsPerMinute)
		}
		b.WriteString("\n")
	}

	if groups := rec.EntityCounts(); len(groups) > 0 {
		b.WriteString("## Entities\n\n")
		types := make([]string, 0, len(groups))
		for t := range groups {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			mentions := make([]string, len(groups[t]))
			for i, e := range groups[t] {
				mentions[i] = fmt.Sprintf("%s (%d)", escapeMarkdown(e.Text), e.Count)
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", escapeMarkdown(t), strings.Join(mentions, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Transcript\n\n")
	if len(rec.Utterances) == 0 {
		b.WriteString(escapeMarkdown(rec.Text))
		b.WriteString("\n")
		return b.String()
	}
	for _, u := range rec.Utterances {
		fmt.Fprintf(&b, "**Speaker %s** [%s]: %s\n\n", escapeMarkdown(u.Speaker), formatOffset(u.Start), escapeMarkdown(u.Text))
	}
	return b.String()
}

// escapeMarkdown backslash-escapes markdown and HTML metacharacters.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '#', '|', '~', '<', '>', '&':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatOffset formats milliseconds as m:ss or h:mm:ss.
func formatOffset(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}
