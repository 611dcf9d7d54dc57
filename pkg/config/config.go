// Package config merges cinedex.yaml, the environment and CLI flags into
// the settings the server and CLI consume.
//
// Precedence, per field: CLI flag > environment > config file > default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cinedex/pkg/schema"
)

const (
	// ErrCodeNotFound means an explicitly named config file does not exist.
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid means the file could not be parsed or a field is invalid.
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultFile          = "cinedex.yaml"
	DefaultDataDir       = "data"
	DefaultCacheDir      = "cache"
	DefaultCharacterFile = "characterMap.csv"
	DefaultCacheTTL      = time.Hour
	DefaultFetchTimeout  = 15 * time.Second
	DefaultPort          = "8080"
)

// Environment variables read by Load.
const (
	EnvDataDir  = "CINEDEX_DATA_DIR"
	EnvBaseURL  = "CINEDEX_BASE_URL"
	EnvCacheTTL = "CINEDEX_CACHE_TTL"
	EnvPort     = "PORT"
)

// FileConfig mirrors cinedex.yaml.
type FileConfig struct {
	DataDir       string             `yaml:"data_dir"`
	BaseURL       string             `yaml:"base_url"`
	Listen        string             `yaml:"listen"`
	CacheDir      string             `yaml:"cache_dir"`
	StateFile     string             `yaml:"state_file"`
	CacheTTL      string             `yaml:"cache_ttl"`
	FetchTimeout  string             `yaml:"fetch_timeout"`
	Watch         *bool              `yaml:"watch"`
	CharacterFile string             `yaml:"character_file"`
	PosterQueue   int                `yaml:"poster_queue"`
	Franchises    []schema.Franchise `yaml:"franchises"`
}

// CLIArgs carries flag values along with whether each was set, so
// --watch=false can still override watch: true.
type CLIArgs struct {
	ConfigPath string

	DataDir string
	BaseURL string
	Listen  string

	Watch    bool
	WatchSet bool
}

// Config is the merged, validated configuration.
type Config struct {
	// File is the config file that was read, or "" when none was.
	File string

	DataDir       string
	BaseURL       string
	Listen        string
	CacheDir      string
	StateFile     string
	CacheTTL      time.Duration
	FetchTimeout  time.Duration
	Watch         bool
	CharacterFile string
	PosterQueue   int
	Franchises    []schema.Franchise
}

// Remote reports whether datasets are fetched over HTTP.
func (c Config) Remote() bool { return c.BaseURL != "" }

// PosterDirs maps each franchise with a poster directory to its absolute
// path. Relative directories are resolved against the data dir.
func (c Config) PosterDirs() map[string]string {
	out := map[string]string{}
	for _, f := range c.Franchises {
		if f.PosterDir == "" {
			continue
		}
		dir := f.PosterDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.DataDir, dir)
		}
		out[strings.ToLower(f.Slug)] = dir
	}
	return out
}

// Error is a configuration error with a stable code.
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s: config file %q not found", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s: config file %q: %v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: config file %q", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code, or "" if err is not a *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load reads the config file and merges it with the environment and cli.
// Without --config, cinedex.yaml in cwd is optional.
func Load(cwd string, cli CLIArgs) (Config, error) {
	path := strings.TrimSpace(cli.ConfigPath)
	required := path != ""
	if !required {
		path = DefaultFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}

	fc, exists, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	if !exists && required {
		return Config{}, &Error{Code: ErrCodeNotFound, Path: path}
	}

	cfg := Config{
		DataDir:       first(cli.DataDir, os.Getenv(EnvDataDir), fc.DataDir, DefaultDataDir),
		BaseURL:       first(cli.BaseURL, os.Getenv(EnvBaseURL), fc.BaseURL),
		Listen:        first(cli.Listen, portAddr(os.Getenv(EnvPort)), fc.Listen, ":"+DefaultPort),
		CacheDir:      first(fc.CacheDir, DefaultCacheDir),
		StateFile:     fc.StateFile,
		CharacterFile: first(fc.CharacterFile, DefaultCharacterFile),
		PosterQueue:   fc.PosterQueue,
		Franchises:    fc.Franchises,
	}
	if exists {
		cfg.File = path
	}

	base := cwd
	if exists {
		base = filepath.Dir(path)
	}
	// Flags and env resolve against cwd; file paths against the file.
	if cli.DataDir == "" && os.Getenv(EnvDataDir) == "" {
		cfg.DataDir = absFrom(base, cfg.DataDir)
	} else {
		cfg.DataDir = absFrom(cwd, cfg.DataDir)
	}
	cfg.CacheDir = absFrom(base, cfg.CacheDir)
	if cfg.StateFile != "" {
		cfg.StateFile = absFrom(base, cfg.StateFile)
	}

	ttl := first(os.Getenv(EnvCacheTTL), fc.CacheTTL)
	if cfg.CacheTTL, err = parseDuration(ttl, DefaultCacheTTL); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: fmt.Errorf("cache_ttl: %w", err)}
	}
	if cfg.FetchTimeout, err = parseDuration(fc.FetchTimeout, DefaultFetchTimeout); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: fmt.Errorf("fetch_timeout: %w", err)}
	}

	switch {
	case cli.WatchSet:
		cfg.Watch = cli.Watch
	case fc.Watch != nil:
		cfg.Watch = *fc.Watch
	}

	if cfg.PosterQueue < 0 {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: fmt.Errorf("poster_queue must not be negative")}
	}
	if err := validateFranchises(cfg.Franchises); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	if cfg.Remote() && len(cfg.Franchises) == 0 {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: fmt.Errorf("base_url requires an explicit franchises list")}
	}
	return cfg, nil
}

func readFile(path string) (FileConfig, bool, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fc, false, nil
	}
	if err != nil {
		return fc, false, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, true, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return fc, true, nil
}

func validateFranchises(fs []schema.Franchise) error {
	seen := map[string]bool{}
	for i, f := range fs {
		slug := strings.ToLower(strings.TrimSpace(f.Slug))
		if slug == "" {
			return fmt.Errorf("franchises[%d]: slug is required", i)
		}
		if strings.ContainsAny(slug, `/\ `) {
			return fmt.Errorf("franchises[%d]: slug %q must not contain separators or spaces", i, f.Slug)
		}
		if seen[slug] {
			return fmt.Errorf("franchises[%d]: duplicate slug %q", i, f.Slug)
		}
		seen[slug] = true
	}
	return nil
}

// parseDuration accepts Go durations ("90m") or plain seconds ("300").
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func portAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	return ":" + port
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func absFrom(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
