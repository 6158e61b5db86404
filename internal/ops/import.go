package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/podscribe/internal/cachekey"
	"github.com/hpungsan/podscribe/internal/codec"
	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/db"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/store"
)

// maxImportLine bounds a single JSONL line; long episodes produce large
// utterance arrays.
const maxImportLine = 64 << 20

// ImportMode controls what happens when an entry is already cached.
type ImportMode string

const (
	ImportModeReplace ImportMode = "replace" // overwrite the cached entry
	ImportModeSkip    ImportMode = "skip"    // keep the cached entry
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required; .jsonl or .jsonl.zst
	Mode ImportMode // default: replace
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes a line that was not imported.
type ImportError struct {
	Line    int    `json:"line"`
	Key     string `json:"key,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// importLine matches both the header and record lines.
type importLine struct {
	ExportRecord
	PodscribeExport bool   `json:"_podscribe_export"`
	FormatVersion   string `json:"format_version"`
}

// Import loads an export file. Every line that decodes to a valid transcript
// under the key its URL derives to is written; other lines are reported and
// skipped.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeReplace
	}
	if input.Mode != ImportModeReplace && input.Mode != ImportModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: replace, skip")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openNoFollow(input.Path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, errors.ErrFileNotFound) || errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	var src io.Reader = file
	if IsCompressedPath(input.Path) {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid zstd stream: %v", err))
		}
		defer dec.Close()
		src = dec
	}

	return importLines(ctx, database, src, input.Mode)
}

func importLines(ctx context.Context, database *sql.DB, src io.Reader, mode ImportMode) (*ImportOutput, error) {
	out := &ImportOutput{Errors: []ImportError{}}
	reject := func(line int, key, code, msg string) {
		out.Skipped++
		out.Errors = append(out.Errors, ImportError{Line: line, Key: key, Code: code, Message: msg})
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0
	now := time.Now()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("import")
		}
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var line importLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			reject(lineNum, "", "PARSE_ERROR", fmt.Sprintf("invalid JSON: %v", err))
			continue
		}

		if line.PodscribeExport {
			if line.FormatVersion != ExportFormatVersion {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported export format version %q", line.FormatVersion))
			}
			continue
		}

		rec := line.ExportRecord
		if rec.Key == "" || rec.URL == "" {
			reject(lineNum, rec.Key, string(errors.ErrInvalidRecord), "key and url are required")
			continue
		}
		if cachekey.Derive(rec.URL).String() != rec.Key {
			reject(lineNum, rec.Key, "KEY_MISMATCH", "key does not match url")
			continue
		}

		row := rec.toRow()
		if _, err := codec.Decode(&row.Blob); err != nil {
			reject(lineNum, rec.Key, string(errors.ErrDecode), err.Error())
			continue
		}

		if mode == ImportModeSkip {
			_, err := db.Get(ctx, database, rec.Key)
			if err == nil {
				out.Skipped++
				continue
			}
			if !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}

		if row.Revision == "" {
			row.Revision = store.NewRevision(now)
		}
		if row.CreatedAt == 0 {
			row.CreatedAt = now.Unix()
		}
		if row.UpdatedAt == 0 {
			row.UpdatedAt = now.Unix()
		}
		if err := db.Upsert(ctx, database, row); err != nil {
			return nil, err
		}
		out.Imported++
	}

	if err := scanner.Err(); err != nil {
		reject(lineNum+1, "", "READ_ERROR", fmt.Sprintf("failed to read file: %v", err))
	}
	return out, nil
}
