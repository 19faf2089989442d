package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/foldersync/internal/mirror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	tmp := t.TempDir()
	src := filepath.Join(tmp, "source")
	require.NoError(t, os.MkdirAll(src, 0o755))
	return &Config{
		Source:   src,
		Replica:  filepath.Join(tmp, "replica"),
		LogFile:  filepath.Join(tmp, "sync.log"),
		Interval: 500 * time.Millisecond,
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, mirror.AlgoBLAKE3, cfg.Algorithm())
	assert.True(t, filepath.IsAbs(cfg.Replica))
}

func TestValidate_RelativePathsAreResolved(t *testing.T) {
	cfg := validConfig(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Dir(cfg.Source)))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg.Source, cfg.Replica = "source", "./replica"

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.Source))
	assert.Equal(t, "replica", filepath.Base(cfg.Replica))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"missing source", func(c *Config) { c.Source = "" }, ErrNoSource},
		{"missing replica", func(c *Config) { c.Replica = "" }, ErrNoReplica},
		{"missing log", func(c *Config) { c.LogFile = "" }, ErrNoLogFile},
		{"source does not exist", func(c *Config) { c.Source = filepath.Join(c.Source, "nope") }, ErrSourceNotDir},
		{"same roots", func(c *Config) { c.Replica = c.Source }, ErrRootsOverlap},
		{"replica inside source", func(c *Config) { c.Replica = filepath.Join(c.Source, "r") }, ErrRootsOverlap},
		{"source inside replica", func(c *Config) {
			c.Replica = filepath.Dir(c.Source)
			c.LogFile = filepath.Join(os.TempDir(), "foldersync-test.log")
		}, ErrRootsOverlap},
		{"log inside replica", func(c *Config) { c.LogFile = filepath.Join(c.Replica, "sync.log") }, ErrLogInReplica},
		{"zero interval", func(c *Config) { c.Interval = 0 }, ErrInvalidInterval},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_SourceIsAFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(cfg.Source, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	cfg.Source = file
	cfg.Replica = filepath.Join(t.TempDir(), "replica")

	assert.ErrorIs(t, cfg.Validate(), ErrSourceNotDir)
}

func TestValidate_UnknownHash(t *testing.T) {
	cfg := validConfig(t)
	cfg.Hash = "sha0"
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.Hash = "md5"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, mirror.AlgoMD5, cfg.Algorithm())
}

func TestValidate_DiagFileMustDifferFromLog(t *testing.T) {
	cfg := validConfig(t)
	cfg.DiagFile = cfg.LogFile
	assert.Error(t, cfg.Validate())
}
