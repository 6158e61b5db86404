// Package codec maps transcript records to the flat string fields the cache
// store persists, and back.
//
// Structured fields are written as JSON text. Absent optional fields are
// stored as NULL (nil pointers) so that absence survives a round trip.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/transcript"
)

// Blob is the storable form of a transcript record: one flat string field
// per column.
type Blob struct {
	Text       string
	Utterances string
	Summary    string
	Chapters   *string
	Entities   *string
	Sentiment  *string

	// SchemaVersion is the record layout version. Zero means the record
	// predates versioning and is read as version 1.
	SchemaVersion int
}

// Size returns the number of bytes the blob occupies across all fields.
func (b *Blob) Size() int {
	n := len(b.Text) + len(b.Utterances) + len(b.Summary)
	for _, s := range []*string{b.Chapters, b.Entities, b.Sentiment} {
		if s != nil {
			n += len(*s)
		}
	}
	return n
}

// Encode validates r and serializes it into a Blob.
func Encode(r *transcript.Record) (*Blob, error) {
	if r == nil {
		return nil, errors.NewInvalidRecord("record", "must not be nil")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	utterances, err := json.Marshal(r.Utterances)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("encode utterances: %w", err))
	}

	b := &Blob{
		Text:          r.Text,
		Utterances:    string(utterances),
		Summary:       r.Summary,
		SchemaVersion: transcript.SchemaVersion,
	}

	if r.Chapters != nil {
		data, err := json.Marshal(r.Chapters)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("encode chapters: %w", err))
		}
		b.Chapters = stringPtr(string(data))
	}
	if r.Entities != nil {
		data, err := json.Marshal(r.Entities)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("encode entities: %w", err))
		}
		b.Entities = stringPtr(string(data))
	}
	if r.Sentiment != nil {
		b.Sentiment = stringPtr(string(r.Sentiment))
	}

	return b, nil
}

// Decode reverses Encode. A blob whose required fields are unreadable fails
// with a DECODE_ERROR and no record. Malformed optional fields are omitted.
func Decode(b *Blob) (*transcript.Record, error) {
	r, _, err := DecodeWithReport(b)
	return r, err
}

// DecodeWithReport is Decode that also returns the names of optional fields
// that were present but malformed and therefore omitted.
func DecodeWithReport(b *Blob) (*transcript.Record, []string, error) {
	if b == nil {
		return nil, nil, errors.NewDecode("blob", nil)
	}
	if b.SchemaVersion > transcript.SchemaVersion {
		return nil, nil, errors.NewDecode("schema_version",
			fmt.Errorf("version %d is newer than supported %d", b.SchemaVersion, transcript.SchemaVersion))
	}

	r := &transcript.Record{
		Text:    b.Text,
		Summary: b.Summary,
	}

	if b.Utterances == "" {
		return nil, nil, errors.NewDecode("utterances", fmt.Errorf("empty field"))
	}
	if err := json.Unmarshal([]byte(b.Utterances), &r.Utterances); err != nil {
		return nil, nil, errors.NewDecode("utterances", err)
	}
	if err := transcript.ValidateUtterances(r.Utterances); err != nil {
		return nil, nil, errors.NewDecode("utterances", err)
	}

	var dropped []string

	if b.Chapters != nil {
		var chapters []transcript.Chapter
		if err := unmarshalArray(*b.Chapters, &chapters); err != nil || transcript.ValidateChapters(chapters) != nil {
			dropped = append(dropped, "chapters")
		} else {
			r.Chapters = chapters
		}
	}

	if b.Entities != nil {
		var entities []transcript.Entity
		if err := unmarshalArray(*b.Entities, &entities); err != nil {
			dropped = append(dropped, "entities")
		} else {
			clean := transcript.SanitizeEntities(entities)
			if len(clean) != len(entities) {
				dropped = append(dropped, "entities")
			}
			r.Entities = clean
		}
	}

	if b.Sentiment != nil {
		if json.Valid([]byte(*b.Sentiment)) {
			r.Sentiment = json.RawMessage(*b.Sentiment)
		} else {
			dropped = append(dropped, "sentiment")
		}
	}

	return r, dropped, nil
}

// Canonical returns r as it would be read back from the cache.
// Both the cache-hit path and the fresh-compute path shape their results
// through this function, so presentation code sees one structure.
func Canonical(r *transcript.Record) (*transcript.Record, error) {
	b, err := Encode(r)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// unmarshalArray decodes a JSON array. JSON null or any other non-array
// value is rejected, since a stored optional field is either absent (NULL)
// or an array.
func unmarshalArray[T any](s string, out *[]T) error {
	var items []T
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return err
	}
	if items == nil {
		return fmt.Errorf("expected array")
	}
	*out = items
	return nil
}

func stringPtr(s string) *string {
	return &s
}
