// Package transcript defines the cached unit: a transcript body with its
// speaker-tagged utterances and the optional analytics produced alongside it.
package transcript

import "encoding/json"

// SchemaVersion is the record layout version written by this build.
// Bump it when a field is added; older records decode with the new field absent.
const SchemaVersion = 1

// Record is one transcript result as returned to presentation code.
// Cache hits and fresh computations both produce this exact shape.
type Record struct {
	// Text is the full transcript body. May be empty.
	Text string `json:"text"`

	// Utterances are speaker-attributed spans ordered by Start.
	Utterances []Utterance `json:"utterances"`

	// Summary is an optional summary; empty means none.
	Summary string `json:"summary"`

	// Chapters is nil when chaptering was not produced.
	Chapters []Chapter `json:"chapters"`

	// Entities is nil when entity detection was not produced.
	Entities []Entity `json:"entities"`

	// Sentiment is an opaque JSON payload, nil when absent.
	Sentiment json.RawMessage `json:"sentiment,omitempty"`
}

// Utterance is a single speaker-attributed, time-bounded span of text.
// Start and End are milliseconds from the beginning of the source.
type Utterance struct {
	Speaker string `json:"speaker"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Text    string `json:"text"`
}

// Chapter is a named, time-bounded summary segment.
type Chapter struct {
	Headline string `json:"headline"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Summary  string `json:"summary"`
}

// Entity is a detected entity mention. EntityType is a free-form category.
type Entity struct {
	Text       string `json:"text"`
	EntityType string `json:"entity_type"`
}

// Clone returns a deep copy of r. Nil and empty slices keep their
// distinction.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Utterances = cloneSlice(r.Utterances)
	out.Chapters = cloneSlice(r.Chapters)
	out.Entities = cloneSlice(r.Entities)
	out.Sentiment = cloneSlice(r.Sentiment)
	return &out
}

func cloneSlice[S ~[]E, E any](s S) S {
	if s == nil {
		return nil
	}
	return append(make(S, 0, len(s)), s...)
}

// Speakers returns distinct speaker labels in order of first appearance.
func (r *Record) Speakers() []string {
	seen := make(map[string]bool)
	var speakers []string
	for _, u := range r.Utterances {
		if !seen[u.Speaker] {
			seen[u.Speaker] = true
			speakers = append(speakers, u.Speaker)
		}
	}
	return speakers
}

// DurationMs returns the end of the last utterance or chapter, in milliseconds.
func (r *Record) DurationMs() int64 {
	var end int64
	for _, u := range r.Utterances {
		end = max(end, u.End)
	}
	for _, c := range r.Chapters {
		end = max(end, c.End)
	}
	return end
}

// EntitiesByType groups entity texts by their type, preserving duplicates.
func (r *Record) EntitiesByType() map[string][]string {
	groups := make(map[string][]string)
	for _, e := range r.Entities {
		groups[e.EntityType] = append(groups[e.EntityType], e.Text)
	}
	return groups
}
