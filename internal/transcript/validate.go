package transcript

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/hpungsan/podscribe/internal/errors"
)

// Validate checks the record invariants:
//   - utterances: Start >= 0, End >= Start, ordered by Start ascending
//   - chapters: End >= Start, ordered by Start, non-overlapping
//   - entities: text and type present
//   - sentiment: valid JSON when present
//   - every string field: valid UTF-8
func (r *Record) Validate() error {
	if err := checkUTF8("text", r.Text); err != nil {
		return err
	}
	if err := checkUTF8("summary", r.Summary); err != nil {
		return err
	}
	if err := ValidateUtterances(r.Utterances); err != nil {
		return err
	}
	if err := ValidateChapters(r.Chapters); err != nil {
		return err
	}
	if err := ValidateEntities(r.Entities); err != nil {
		return err
	}
	if r.Sentiment != nil && !json.Valid(r.Sentiment) {
		return errors.NewInvalidRecord("sentiment", "not valid JSON")
	}
	return nil
}

// ValidateUtterances checks timing and ordering of utterances.
func ValidateUtterances(us []Utterance) error {
	for i, u := range us {
		field := fmt.Sprintf("utterances[%d]", i)
		if err := checkUTF8(field, u.Speaker, u.Text); err != nil {
			return err
		}
		if u.Start < 0 {
			return errors.NewInvalidRecord(field, "start must be non-negative")
		}
		if u.End < u.Start {
			return errors.NewInvalidRecord(field, fmt.Sprintf("end %d before start %d", u.End, u.Start))
		}
		if i > 0 && u.Start < us[i-1].Start {
			return errors.NewInvalidRecord(field, "utterances must be ordered by start")
		}
	}
	return nil
}

// ValidateChapters checks timing, ordering and overlap of chapters.
func ValidateChapters(cs []Chapter) error {
	for i, c := range cs {
		field := fmt.Sprintf("chapters[%d]", i)
		if err := checkUTF8(field, c.Headline, c.Summary); err != nil {
			return err
		}
		if c.Start < 0 {
			return errors.NewInvalidRecord(field, "start must be non-negative")
		}
		if c.End < c.Start {
			return errors.NewInvalidRecord(field, fmt.Sprintf("end %d before start %d", c.End, c.Start))
		}
		if i > 0 && c.Start < cs[i-1].End {
			return errors.NewInvalidRecord(field, "chapters must be ordered and non-overlapping")
		}
	}
	return nil
}

// ValidateEntities checks that every entity carries a text and a type.
func ValidateEntities(es []Entity) error {
	for i, e := range es {
		field := fmt.Sprintf("entities[%d]", i)
		if e.Text == "" || e.EntityType == "" {
			return errors.NewInvalidRecord(field, "text and entity_type are required")
		}
		if err := checkUTF8(field, e.Text, e.EntityType); err != nil {
			return err
		}
	}
	return nil
}

// checkUTF8 rejects strings that JSON encoding would silently rewrite.
func checkUTF8(field string, values ...string) error {
	for _, v := range values {
		if !utf8.ValidString(v) {
			return errors.NewInvalidRecord(field, "not valid UTF-8")
		}
	}
	return nil
}

// SanitizeEntities drops entity entries missing a text or type.
// Upstream payloads are not fully trusted; a bad entry never voids the rest.
func SanitizeEntities(es []Entity) []Entity {
	if es == nil {
		return nil
	}
	out := make([]Entity, 0, len(es))
	for _, e := range es {
		if e.Text == "" || e.EntityType == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}
