package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/transcript"
)

func minimalRecord() *transcript.Record {
	return &transcript.Record{
		Text: "hello world",
		Utterances: []transcript.Utterance{
			{Speaker: "A", Start: 0, End: 1000, Text: "hello"},
			{Speaker: "B", Start: 1000, End: 2000, Text: "world"},
		},
		Summary: "greeting",
	}
}

func fullRecord() *transcript.Record {
	r := minimalRecord()
	r.Chapters = []transcript.Chapter{
		{Headline: "Greeting", Start: 0, End: 1000, Summary: "Speaker A says hello"},
		{Headline: "Reply", Start: 1000, End: 2000, Summary: "Speaker B answers"},
	}
	r.Entities = []transcript.Entity{
		{Text: "world", EntityType: "location"},
		{Text: "world", EntityType: "location"},
	}
	r.Sentiment = json.RawMessage(`[{"text":"hello","start":0,"end":1000,"sentiment":"POSITIVE","confidence":0.91}]`)
	return r
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		record *transcript.Record
	}{
		{"minimal", minimalRecord()},
		{"full", fullRecord()},
		{"empty text and no utterances", &transcript.Record{}},
		{"empty utterance list", &transcript.Record{Utterances: []transcript.Utterance{}}},
		{"present but empty optionals", func() *transcript.Record {
			r := minimalRecord()
			r.Chapters = []transcript.Chapter{}
			r.Entities = []transcript.Entity{}
			r.Sentiment = json.RawMessage(`{}`)
			return r
		}()},
		{"unicode text", &transcript.Record{
			Text:       "ça va — très bien 🎙️",
			Utterances: []transcript.Utterance{{Speaker: "C", Start: 5, End: 5, Text: "ça va"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encode(tt.record)
			require.NoError(t, err)

			got, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.record, got)
		})
	}
}

func TestEncode_AbsentOptionalsAreNull(t *testing.T) {
	blob, err := Encode(minimalRecord())
	require.NoError(t, err)

	assert.Nil(t, blob.Chapters)
	assert.Nil(t, blob.Entities)
	assert.Nil(t, blob.Sentiment)
	assert.Equal(t, transcript.SchemaVersion, blob.SchemaVersion)
	assert.JSONEq(t,
		`[{"speaker":"A","start":0,"end":1000,"text":"hello"},{"speaker":"B","start":1000,"end":2000,"text":"world"}]`,
		blob.Utterances)
}

func TestEncode_RejectsInvalidRecord(t *testing.T) {
	r := minimalRecord()
	r.Utterances[0].End = -5

	_, err := Encode(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRecord))

	_, err = Encode(nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRecord))
}

// Strings the JSON columns would rewrite to U+FFFD are refused up front, so
// an accepted record always reads back unchanged.
func TestEncode_RejectsInvalidUTF8(t *testing.T) {
	tests := map[string]func(r *transcript.Record){
		"utterance text": func(r *transcript.Record) { r.Utterances[0].Text = "a\xffb" },
		"chapter summary": func(r *transcript.Record) {
			r.Chapters = []transcript.Chapter{{Headline: "h", Start: 0, End: 10, Summary: "a\xffb"}}
		},
		"entity text": func(r *transcript.Record) {
			r.Entities = []transcript.Entity{{Text: "a\xffb", EntityType: "location"}}
		},
		"body text": func(r *transcript.Record) { r.Text = "a\xffb" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := minimalRecord()
			mutate(r)

			_, err := Encode(r)
			assert.True(t, errors.Is(err, errors.ErrInvalidRecord), "got %v", err)
		})
	}
}

func TestDecode_MalformedRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		blob *Blob
	}{
		{"nil blob", nil},
		{"empty utterances", &Blob{Text: "x"}},
		{"truncated utterances", &Blob{Utterances: `[{"speaker":"A","start":0,`}},
		{"utterances not an array", &Blob{Utterances: `{"speaker":"A"}`}},
		{"utterance field of wrong type", &Blob{Utterances: `[{"speaker":"A","start":"zero","end":1,"text":""}]`}},
		{"utterance end before start", &Blob{Utterances: `[{"speaker":"A","start":10,"end":1,"text":""}]`}},
		{"future schema", &Blob{Utterances: `[]`, SchemaVersion: transcript.SchemaVersion + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.blob)
			require.Error(t, err)
			assert.Nil(t, got, "no partially populated record on failure")
			assert.True(t, errors.Is(err, errors.ErrDecode), "got %v", err)
		})
	}
}

func TestDecode_MalformedOptionalsAreOmitted(t *testing.T) {
	blob, err := Encode(fullRecord())
	require.NoError(t, err)

	blob.Chapters = stringPtr(`[{"headline":"x","start":`)
	blob.Entities = stringPtr(`"not-a-list"`)
	blob.Sentiment = stringPtr(`{oops`)

	got, dropped, err := DecodeWithReport(blob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chapters", "entities", "sentiment"}, dropped)

	assert.Nil(t, got.Chapters)
	assert.Nil(t, got.Entities)
	assert.Nil(t, got.Sentiment)
	assert.Equal(t, minimalRecord().Utterances, got.Utterances)
	assert.Equal(t, "greeting", got.Summary)
}

func TestDecode_OverlappingChaptersDropped(t *testing.T) {
	blob, err := Encode(minimalRecord())
	require.NoError(t, err)
	blob.Chapters = stringPtr(`[{"headline":"a","start":0,"end":10},{"headline":"b","start":5,"end":20}]`)

	got, dropped, err := DecodeWithReport(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"chapters"}, dropped)
	assert.Nil(t, got.Chapters)
}

func TestDecode_NullOptionalTreatedAsMalformed(t *testing.T) {
	blob, err := Encode(minimalRecord())
	require.NoError(t, err)
	blob.Chapters = stringPtr(`null`)

	got, dropped, err := DecodeWithReport(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"chapters"}, dropped)
	assert.Nil(t, got.Chapters)
}

func TestDecode_PartialEntitiesKeepValidEntries(t *testing.T) {
	blob, err := Encode(minimalRecord())
	require.NoError(t, err)
	blob.Entities = stringPtr(`[{"text":"Paris","entity_type":"location"},{"text":"","entity_type":"location"},{"entity_type":"x"}]`)

	got, dropped, err := DecodeWithReport(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"entities"}, dropped)
	assert.Equal(t, []transcript.Entity{{Text: "Paris", EntityType: "location"}}, got.Entities)
}

func TestDecode_LegacyUnversionedRecord(t *testing.T) {
	blob := &Blob{
		Text:       "hello",
		Utterances: `[{"speaker":"A","start":0,"end":1000,"text":"hello"}]`,
		Summary:    "",
	}

	got, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Nil(t, got.Chapters)
	assert.Nil(t, got.Entities)
}

func TestCanonical(t *testing.T) {
	in := fullRecord()
	got, err := Canonical(in)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.NotSame(t, in, got)

	bad := minimalRecord()
	bad.Utterances[1].Start = -1
	_, err = Canonical(bad)
	assert.True(t, errors.Is(err, errors.ErrInvalidRecord))
}

func TestBlob_Size(t *testing.T) {
	b := &Blob{Text: "abc", Utterances: "[]", Summary: "s", Sentiment: stringPtr("{}")}
	assert.Equal(t, 8, b.Size())
}
