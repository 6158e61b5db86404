package transcript

import (
	"sort"
	"strings"
)

// SpeakerStats summarizes one speaker's share of the conversation.
type SpeakerStats struct {
	Speaker    string `json:"speaker"`
	Utterances int    `json:"utterances"`
	TalkMs     int64  `json:"talk_ms"`
	Words      int    `json:"words"`

	// Share is TalkMs as a fraction of all speakers' talk time.
	Share float64 `json:"share"`

	// WordsPerMinute counts only utterances with a positive duration.
	// Zero when the speaker has no timed speech.
	WordsPerMinute float64 `json:"words_per_minute"`
}

// EntityCount is how often one entity text was mentioned.
type EntityCount struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// Analytics is derived from a Record on demand and never stored.
type Analytics struct {
	DurationMs int64                    `json:"duration_ms"`
	Speakers   []SpeakerStats           `json:"speakers"`
	Entities   map[string][]EntityCount `json:"entities,omitempty"`
}

// Analyze computes speaker and entity analytics for r.
func (r *Record) Analyze() *Analytics {
	return &Analytics{
		DurationMs: r.DurationMs(),
		Speakers:   r.SpeakerStats(),
		Entities:   r.EntityCounts(),
	}
}

// SpeakerStats returns per-speaker talk time, word counts and pace, in order
// of first appearance.
func (r *Record) SpeakerStats() []SpeakerStats {
	speakers := r.Speakers()
	if len(speakers) == 0 {
		return nil
	}

	index := make(map[string]int, len(speakers))
	stats := make([]SpeakerStats, len(speakers))
	timedWords := make([]int, len(speakers))
	for i, s := range speakers {
		index[s] = i
		stats[i].Speaker = s
	}

	var total int64
	for _, u := range r.Utterances {
		i := index[u.Speaker]
		words := len(strings.Fields(u.Text))
		dur := u.End - u.Start

		stats[i].Utterances++
		stats[i].Words += words
		stats[i].TalkMs += dur
		if dur > 0 {
			timedWords[i] += words
		}
		total += dur
	}

	for i := range stats {
		if total > 0 {
			stats[i].Share = float64(stats[i].TalkMs) / float64(total)
		}
		if stats[i].TalkMs > 0 {
			stats[i].WordsPerMinute = float64(timedWords[i]) / (float64(stats[i].TalkMs) / 60000)
		}
	}
	return stats
}

// EntityCounts groups entity mentions by type and counts repeats. Each group
// is ordered by count descending, then text. Nil when there are no entities.
func (r *Record) EntityCounts() map[string][]EntityCount {
	groups := r.EntitiesByType()
	if len(groups) == 0 {
		return nil
	}

	out := make(map[string][]EntityCount, len(groups))
	for typ, texts := range groups {
		counts := make(map[string]int)
		for _, t := range texts {
			counts[t]++
		}
		list := make([]EntityCount, 0, len(counts))
		for t, n := range counts {
			list = append(list, EntityCount{Text: t, Count: n})
		}
		sort.Slice(list, func(a, b int) bool {
			if list[a].Count != list[b].Count {
				return list[a].Count > list[b].Count
			}
			return list[a].Text < list[b].Text
		})
		out[typ] = list
	}
	return out
}
