package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/podscribe/internal/ops"
)

func addressOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("url", mcp.Description("Source video or podcast URL, used byte-for-byte")),
		mcp.WithString("key", mcp.Description("Cache key (64 lowercase hex characters); alternative to url")),
	}
}

func lookupToolDef() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Return a cached transcript without transcribing. Errors with NOT_FOUND on a miss."),
		mcp.WithReadOnlyHintAnnotation(true),
	}, addressOptions()...)
	opts = append(opts, mcp.WithBoolean("analytics",
		mcp.Description("Include per-speaker talk time, word counts, pace and entity mention counts"),
	))
	return mcp.NewTool("transcript_lookup", opts...)
}

func processToolDef() mcp.Tool {
	return mcp.NewTool("transcript_process",
		mcp.WithDescription("Return the transcript for a URL, downloading and transcribing it on a cache miss. Slow on a miss."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Source video or podcast URL")),
	)
}

func listToolDef() mcp.Tool {
	return mcp.NewTool("transcript_list",
		mcp.WithDescription("List cached transcripts, most recently written first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Items to skip")),
	)
}

func forgetToolDef() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Remove a cached transcript so the next process call transcribes again."),
		mcp.WithDestructiveHintAnnotation(true),
	}, addressOptions()...)
	return mcp.NewTool("transcript_forget", opts...)
}

func statsToolDef() mcp.Tool {
	return mcp.NewTool("transcript_stats",
		mcp.WithDescription("Report cache size and hit/miss counters."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func renderToolDef() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Render a cached transcript as plain text, markdown, HTML or JSON."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("format",
			mcp.Description("Output format (default txt)"),
			mcp.Enum(string(ops.FormatText), string(ops.FormatMarkdown), string(ops.FormatHTML), string(ops.FormatJSON)),
		),
	}, addressOptions()...)
	return mcp.NewTool("transcript_render", opts...)
}

func exportToolDef() mcp.Tool {
	return mcp.NewTool("transcript_export",
		mcp.WithDescription("Export every cached transcript to a JSONL file."),
		mcp.WithString("path", mcp.Description("Destination .jsonl or .jsonl.zst path (default ~/.podscribe/exports)")),
		mcp.WithBoolean("compress", mcp.Description("Write the default path zstd-compressed")),
	)
}

func importToolDef() mcp.Tool {
	return mcp.NewTool("transcript_import",
		mcp.WithDescription("Import transcripts from a JSONL export. Invalid lines are reported and skipped."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl or .jsonl.zst path")),
		mcp.WithString("mode",
			mcp.Description("replace overwrites cached entries, skip keeps them (default replace)"),
			mcp.Enum(string(ops.ImportModeReplace), string(ops.ImportModeSkip)),
		),
	)
}
