package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
)

// DefaultAssemblyAIBaseURL is the transcription API endpoint used when none is configured.
const DefaultAssemblyAIBaseURL = "https://api.assemblyai.com"

// Config is the merged podscribe configuration.
type Config struct {
	// AllowedPaths lists extra directories that export and import may touch
	// besides ~/.podscribe/exports. Relative entries never match.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths lifts the directory allowlist. Symlinked targets and
	// unknown extensions are rejected regardless.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns caps the sqlite pool; zero leaves database/sql's default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns caps idle pooled connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools names MCP tools that are not registered at startup.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// CollapseDuplicateComputes makes concurrent misses on the same URL
	// share one computation.
	CollapseDuplicateComputes bool `json:"collapse_duplicate_computes,omitempty"`

	// AssemblyAIAPIKey authenticates transcription requests.
	// Usually supplied through ASSEMBLYAI_API_KEY rather than the file.
	AssemblyAIAPIKey string `json:"assemblyai_api_key,omitempty"`

	// AssemblyAIBaseURL overrides the transcription API endpoint.
	AssemblyAIBaseURL string `json:"assemblyai_base_url,omitempty"`

	// YTDLPPath is the yt-dlp executable used to fetch audio.
	YTDLPPath string `json:"ytdlp_path,omitempty"`

	// TempDir holds downloaded audio until transcription finishes.
	// Empty means os.TempDir()/podscribe.
	TempDir string `json:"temp_dir,omitempty"`
}

// Env is the set of environment overrides. Unset variables leave the
// file configuration untouched.
type Env struct {
	AssemblyAIAPIKey string `env:"ASSEMBLYAI_API_KEY"`
	LogLevel         string `env:"PODSCRIBE_LOG_LEVEL"`
	DBMaxOpenConns   int    `env:"PODSCRIBE_DB_MAX_OPEN_CONNS"`
	Collapse         bool   `env:"PODSCRIBE_COLLAPSE"`
	YTDLPPath        string `env:"PODSCRIBE_YTDLP_PATH"`
	TempDir          string `env:"PODSCRIBE_TEMP_DIR"`
}

// DefaultConfig is the configuration used when no file sets a value.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		AssemblyAIBaseURL: DefaultAssemblyAIBaseURL,
		YTDLPPath:         "yt-dlp",
	}
}

// Load reads baseDir/config.json on top of DefaultConfig. A missing file is
// not an error.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo layers defaults, the global file in globalDir, the nearest
// .podscribe/config.json at or above startDir, and finally the environment.
// Later layers win on scalars; list settings accumulate.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := readFile(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := readFile(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	envCfg, err := env.ParseAs[Env]()
	if err != nil {
		return nil, err
	}

	return expandHome(ApplyEnv(Merge(Merge(DefaultConfig(), global), repo), envCfg)), nil
}

// FindRepoConfig returns the closest .podscribe/config.json at or above
// startDir, or "" when none exists up to the filesystem root.
func FindRepoConfig(startDir string) string {
	for dir := startDir; ; {
		candidate := filepath.Join(dir, ".podscribe", "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		up := filepath.Dir(dir)
		if up == dir {
			return ""
		}
		dir = up
	}
}

// ApplyEnv overlays the non-zero environment values onto cfg.
func ApplyEnv(cfg *Config, e Env) *Config {
	return Merge(cfg, &Config{
		AssemblyAIAPIKey:          e.AssemblyAIAPIKey,
		LogLevel:                  e.LogLevel,
		DBMaxOpenConns:            e.DBMaxOpenConns,
		CollapseDuplicateComputes: e.Collapse,
		YTDLPPath:                 e.YTDLPPath,
		TempDir:                   e.TempDir,
	})
}

// readFile decodes one config file without applying defaults. An empty
// path or a missing file yields a zero Config.
func readFile(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return expandHome(Merge(DefaultConfig(), cfg)), nil
}

// expandHome rewrites a leading ~ in path settings to the user's home
// directory. Entries that cannot be expanded (~otheruser/...) are kept as
// written and later fail the absolute-path checks.
func expandHome(cfg *Config) *Config {
	for i, p := range cfg.AllowedPaths {
		cfg.AllowedPaths[i] = expand(p)
	}
	cfg.TempDir = expand(cfg.TempDir)
	cfg.YTDLPPath = expand(cfg.YTDLPPath)
	return cfg
}

func expand(p string) string {
	out, err := homedir.Expand(p)
	if err != nil {
		return p
	}
	return out
}

// Merge returns a new Config with overlay applied to base. Non-zero
// overlay scalars replace base ones, flags are OR-ed, and lists are
// concatenated without duplicates.
func Merge(base, overlay *Config) *Config {
	return &Config{
		AllowedPaths:              dedupe(base.AllowedPaths, overlay.AllowedPaths),
		AllowUnsafePaths:          base.AllowUnsafePaths || overlay.AllowUnsafePaths,
		DBMaxOpenConns:            firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:            firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		DisabledTools:             dedupe(base.DisabledTools, overlay.DisabledTools),
		LogLevel:                  firstNonZero(overlay.LogLevel, base.LogLevel),
		CollapseDuplicateComputes: base.CollapseDuplicateComputes || overlay.CollapseDuplicateComputes,
		AssemblyAIAPIKey:          firstNonZero(overlay.AssemblyAIAPIKey, base.AssemblyAIAPIKey),
		AssemblyAIBaseURL:         firstNonZero(overlay.AssemblyAIBaseURL, base.AssemblyAIBaseURL),
		YTDLPPath:                 firstNonZero(overlay.YTDLPPath, base.YTDLPPath),
		TempDir:                   firstNonZero(overlay.TempDir, base.TempDir),
	}
}

func firstNonZero[T comparable](a, b T) T {
	var zero T
	if a != zero {
		return a
	}
	return b
}

// dedupe joins lists in order, trimming entries and dropping blanks and
// repeats. It returns nil rather than an empty slice.
func dedupe(lists ...[]string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, list := range lists {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
