package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/podscribe/internal/codec"
	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/db"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/transcript"
)

// ExportFormatVersion is the version of the JSONL export layout.
const ExportFormatVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	// Path is optional; default: ~/.podscribe/exports/transcripts-<timestamp>.jsonl[.zst].
	// A .jsonl.zst path is always written compressed.
	Path string

	// Compress selects the .jsonl.zst default path. Ignored when Path is set.
	Compress bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Compressed bool   `json:"compressed"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	PodscribeExport bool   `json:"_podscribe_export"`
	FormatVersion   string `json:"format_version"`
	RecordSchema    int    `json:"record_schema"`
	ExportedAt      int64  `json:"exported_at"`
}

// ExportRecord is one stored entry as written to an export file. Fields are
// the stored strings, so entries round-trip even if they no longer decode.
type ExportRecord struct {
	Key           string  `json:"key"`
	URL           string  `json:"url"`
	Text          string  `json:"text"`
	Utterances    string  `json:"utterances"`
	Summary       string  `json:"summary"`
	Chapters      *string `json:"chapters"`
	Entities      *string `json:"entities"`
	Sentiment     *string `json:"sentiment"`
	SchemaVersion int     `json:"schema_version"`
	Revision      string  `json:"revision,omitempty"`
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
}

func rowToExportRecord(r *db.Row) ExportRecord {
	return ExportRecord{
		Key:           r.Key,
		URL:           r.SourceURL,
		Text:          r.Blob.Text,
		Utterances:    r.Blob.Utterances,
		Summary:       r.Blob.Summary,
		Chapters:      r.Blob.Chapters,
		Entities:      r.Blob.Entities,
		Sentiment:     r.Blob.Sentiment,
		SchemaVersion: r.Blob.SchemaVersion,
		Revision:      r.Revision,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// toRow converts an export record back to a table row.
func (e *ExportRecord) toRow() *db.Row {
	return &db.Row{
		Key:       e.Key,
		SourceURL: e.URL,
		Blob: codec.Blob{
			Text:          e.Text,
			Utterances:    e.Utterances,
			Summary:       e.Summary,
			Chapters:      e.Chapters,
			Entities:      e.Entities,
			Sentiment:     e.Sentiment,
			SchemaVersion: e.SchemaVersion,
		},
		Revision:  e.Revision,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// Export writes every cached transcript to a JSONL file, optionally zstd-compressed.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		var err error
		exportPath, err = defaultExportPath(now, input.Compress)
		if err != nil {
			return nil, err
		}
	}
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}
	compressed := IsCompressedPath(exportPath)

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to a temp file, then rename so an existing export survives failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	var sink io.Writer = file
	var enc *zstd.Encoder
	if compressed {
		enc, err = zstd.NewWriter(file)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to create zstd encoder: %w", err))
		}
		defer enc.Close()
		sink = enc
	}
	w := bufio.NewWriter(sink)

	count, err := writeExport(ctx, database, w, now.Unix())
	if err != nil {
		return nil, err
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to finish zstd stream: %w", err))
		}
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if isSymlink(exportPath) {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		Compressed: compressed,
		ExportedAt: now.Unix(),
	}, nil
}

// writeExport streams the header line and one line per stored row.
func writeExport(ctx context.Context, database *sql.DB, w io.Writer, exportedAt int64) (int, error) {
	enc := json.NewEncoder(w)
	header := ExportHeader{
		PodscribeExport: true,
		FormatVersion:   ExportFormatVersion,
		RecordSchema:    transcript.SchemaVersion,
		ExportedAt:      exportedAt,
	}
	if err := enc.Encode(header); err != nil {
		return 0, errors.NewInternal(err)
	}

	rows, err := db.StreamForExport(ctx, database)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		if ctx.Err() != nil {
			return 0, errors.NewCancelled("export")
		}

		r, err := db.ScanRowFromRows(rows)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		if err := enc.Encode(rowToExportRecord(r)); err != nil {
			return 0, errors.NewInternal(err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// defaultExportPath returns ~/.podscribe/exports/transcripts-<timestamp>.jsonl[.zst].
func defaultExportPath(now time.Time, compress bool) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("transcripts-%s.jsonl", now.Format("2006-01-02T150405"))
	if compress {
		name += ".zst"
	}
	return filepath.Join(dir, name), nil
}
