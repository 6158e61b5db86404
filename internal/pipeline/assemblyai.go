package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/transcript"
	"golang.org/x/time/rate"
)

// AssemblyAI transcribes audio through the AssemblyAI v2 REST API with
// speaker labels, chapters, sentiment and entity detection enabled.
type AssemblyAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// PollInterval is the delay between status checks.
	PollInterval time.Duration
}

// NewAssemblyAI returns a client. An empty baseURL uses the public endpoint.
func NewAssemblyAI(apiKey, baseURL string) *AssemblyAI {
	if baseURL == "" {
		baseURL = config.DefaultAssemblyAIBaseURL
	}
	return &AssemblyAI{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		PollInterval: 3 * time.Second,
	}
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	AutoChapters      bool   `json:"auto_chapters"`
	SentimentAnalysis bool   `json:"sentiment_analysis"`
	EntityDetection   bool   `json:"entity_detection"`
	LanguageDetection bool   `json:"language_detection"`
}

type transcriptResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	Text       string `json:"text"`
	Summary    string `json:"summary"`
	Utterances []struct {
		Speaker string `json:"speaker"`
		Start   int64  `json:"start"`
		End     int64  `json:"end"`
		Text    string `json:"text"`
	} `json:"utterances"`
	Chapters []struct {
		Headline string `json:"headline"`
		Summary  string `json:"summary"`
		Start    int64  `json:"start"`
		End      int64  `json:"end"`
	} `json:"chapters"`
	Entities []struct {
		EntityType string `json:"entity_type"`
		Text       string `json:"text"`
	} `json:"entities"`
	SentimentAnalysisResults json.RawMessage `json:"sentiment_analysis_results"`
}

// Transcribe uploads audioPath, submits a transcript job and polls until it
// completes or fails.
func (a *AssemblyAI) Transcribe(ctx context.Context, audioPath string) (*transcript.Record, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("AssemblyAI API key not configured")
	}

	uploadURL, err := a.upload(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	var job transcriptResponse
	err = a.doJSON(ctx, http.MethodPost, "/v2/transcript", transcriptRequest{
		AudioURL:          uploadURL,
		SpeakerLabels:     true,
		AutoChapters:      true,
		SentimentAnalysis: true,
		EntityDetection:   true,
		LanguageDetection: true,
	}, &job)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	// The initial token is spent so the first status check waits a full interval.
	poll := rate.NewLimiter(rate.Every(a.PollInterval), 1)
	poll.Allow()

	for {
		switch job.Status {
		case "completed":
			return toRecord(&job), nil
		case "error":
			return nil, fmt.Errorf("transcript %s failed: %s", job.ID, job.Error)
		}

		if err := poll.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("poll %s: %w", job.ID, err)
		}

		if err := a.doJSON(ctx, http.MethodGet, "/v2/transcript/"+job.ID, nil, &job); err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
	}
}

func (a *AssemblyAI) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/upload", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.send(req, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("empty upload_url in response")
	}
	return out.UploadURL, nil
}

func (a *AssemblyAI) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, out)
}

func (a *AssemblyAI) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("AssemblyAI API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

// toRecord maps a completed job onto a Record. Chapters that break ordering
// are dropped and incomplete entities filtered; the service is not trusted
// to always send well-formed analytics.
func toRecord(job *transcriptResponse) *transcript.Record {
	rec := &transcript.Record{
		Text:    job.Text,
		Summary: job.Summary,
	}

	if job.Utterances != nil {
		rec.Utterances = make([]transcript.Utterance, 0, len(job.Utterances))
		for _, u := range job.Utterances {
			rec.Utterances = append(rec.Utterances, transcript.Utterance{
				Speaker: u.Speaker, Start: u.Start, End: u.End, Text: u.Text,
			})
		}
	}

	if job.Chapters != nil {
		chapters := make([]transcript.Chapter, 0, len(job.Chapters))
		for _, c := range job.Chapters {
			chapters = append(chapters, transcript.Chapter{
				Headline: c.Headline, Start: c.Start, End: c.End, Summary: c.Summary,
			})
		}
		if transcript.ValidateChapters(chapters) == nil {
			rec.Chapters = chapters
		}
	}

	if job.Entities != nil {
		entities := make([]transcript.Entity, 0, len(job.Entities))
		for _, e := range job.Entities {
			entities = append(entities, transcript.Entity{Text: e.Text, EntityType: e.EntityType})
		}
		rec.Entities = transcript.SanitizeEntities(entities)
	}

	if len(job.SentimentAnalysisResults) > 0 && string(job.SentimentAnalysisResults) != "null" {
		rec.Sentiment = job.SentimentAnalysisResults
	}

	return rec
}
