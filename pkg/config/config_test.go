package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDataDir, EnvBaseURL, EnvCacheTTL, EnvPort} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()

	cfg, err := Load(cwd, CLIArgs{})
	require.NoError(t, err)
	assert.Equal(t, "", cfg.File)
	assert.Equal(t, filepath.Join(cwd, DefaultDataDir), cfg.DataDir)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, DefaultFetchTimeout, cfg.FetchTimeout)
	assert.Equal(t, DefaultCharacterFile, cfg.CharacterFile)
	assert.False(t, cfg.Watch)
	assert.False(t, cfg.Remote())
}

func TestLoadExplicitFileMissing(t *testing.T) {
	clearEnv(t)
	_, err := Load(t.TempDir(), CLIArgs{ConfigPath: "nope.yaml"})
	assert.Equal(t, ErrCodeNotFound, Code(err))
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"yaml":      "franchises: [",
		"ttl":       "cache_ttl: soon\n",
		"duplicate": "franchises:\n  - slug: marvel\n  - slug: Marvel\n",
		"no slug":   "franchises:\n  - name: Marvel\n",
		"remote":    "base_url: https://example.com/data\n",
		"queue":     "poster_queue: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, DefaultFile), body)
			_, err := Load(cwd, CLIArgs{})
			assert.Equal(t, ErrCodeInvalid, Code(err), "err=%v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "conf", "cinedex.yaml"), `
data_dir: datasets
cache_ttl: 90m
fetch_timeout: "5"
watch: true
state_file: state.json
franchises:
  - slug: marvel
    name: Marvel Cinematic Universe
    movies: mcu.csv
    prequels: mcu-prequels.csv
    poster_dir: posters/marvel
`)

	cfg, err := Load(cwd, CLIArgs{ConfigPath: "conf/cinedex.yaml"})
	require.NoError(t, err)
	conf := filepath.Join(cwd, "conf")
	assert.Equal(t, filepath.Join(conf, "cinedex.yaml"), cfg.File)
	assert.Equal(t, filepath.Join(conf, "datasets"), cfg.DataDir)
	assert.Equal(t, filepath.Join(conf, "state.json"), cfg.StateFile)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.True(t, cfg.Watch)

	require.Len(t, cfg.Franchises, 1)
	f := cfg.Franchises[0]
	assert.Equal(t, "mcu.csv", f.Movies)
	assert.Equal(t, "mcu-prequels.csv", f.Prequels)
	assert.Equal(t, map[string]string{"marvel": filepath.Join(conf, "datasets", "posters", "marvel")}, cfg.PosterDirs())
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, DefaultFile), "data_dir: from-file\nlisten: \":9000\"\ncache_ttl: 1m\nwatch: true\n")

	t.Setenv(EnvDataDir, "from-env")
	t.Setenv(EnvPort, "7000")
	t.Setenv(EnvCacheTTL, "120")

	cfg, err := Load(cwd, CLIArgs{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "from-env"), cfg.DataDir)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.Watch)

	cfg, err = Load(cwd, CLIArgs{DataDir: "/srv/data", Listen: ":1234", WatchSet: true})
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", cfg.DataDir)
	assert.Equal(t, ":1234", cfg.Listen)
	assert.False(t, cfg.Watch, "--watch=false overrides the file")
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = parseDuration("30", 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	_, err = parseDuration("-1m", 0)
	assert.Error(t, err)
}
