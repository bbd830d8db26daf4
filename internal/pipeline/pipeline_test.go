package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
)

const sampleSrc = `
module "demo"

define i32 @add(i32 %a, i32 %b) {
entry:
  %sum = add i32 %a, %b
  ret i32 %sum
}
`

func TestExecuteRunsRegisteredPasses(t *testing.T) {
	m, err := asmir.Parse(sampleSrc)
	require.NoError(t, err)

	cfg := &Config{Passes: []string{"flattening"}, Seed: 42}
	run, err := Execute(cfg, m)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestExecuteRejectsUnknownPass(t *testing.T) {
	m, err := asmir.Parse(sampleSrc)
	require.NoError(t, err)

	cfg := &Config{Passes: []string{"not-a-real-pass"}}
	_, err = Execute(cfg, m)
	assert.Error(t, err)
}

func TestLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	yamlSrc := "passes:\n  - flattening\n  - connect\nseed: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlSrc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.EqualValues(t, 7, cfg.Seed)
	assert.Equal(t, []string{"flattening", "connect"}, cfg.Passes)
}

func TestWriteSplitsWritesFiles(t *testing.T) {
	m, err := asmir.Parse(sampleSrc)
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := &Config{Passes: []string{"func2mod"}, Seed: 1}
	run, err := Execute(cfg, m)
	require.NoError(t, err)
	require.NotEmpty(t, run.Splits, "expected func2mod to produce at least one split")

	require.NoError(t, WriteSplits(dir, run.Splits))
	for _, split := range run.Splits {
		path := filepath.Join(dir, split.Name+".ll")
		_, err := os.Stat(path)
		assert.NoError(t, err, "expected %s to exist", path)
	}
}
