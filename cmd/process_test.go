package cmd

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runProcess(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newProcessCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTestPNG(t *testing.T, dir string, width, height int) string {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 60, G: 120, B: 180, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(dir, "input.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func decodeConfig(t *testing.T, path string) (image.Config, string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestProcessLegacyOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 640, 480)
	output := filepath.Join(dir, "output.jpg")

	stdout, err := runProcess(t, input, output, "--max_dimension", "320")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Successfully processed: "+output)

	cfg, format := decodeConfig(t, output)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestProcessKeepsSizeBelowBound(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 640, 480)
	output := filepath.Join(dir, "output.jpg")

	_, err := runProcess(t, input, output, "--max_dimension", "2000")
	require.NoError(t, err)

	cfg, format := decodeConfig(t, output)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestProcessOutputsFlag(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 640, 480)
	large := filepath.Join(dir, "large.jpg")
	thumb := filepath.Join(dir, "thumb.jpg")

	outputs := fmt.Sprintf(`[{"path":%q,"height":480},{"path":%q,"height":100}]`, large, thumb)
	stdout, err := runProcess(t, input, "--outputs", outputs)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Successfully processed: "+large)
	assert.Contains(t, stdout, "Successfully processed: "+thumb)

	largeCfg, _ := decodeConfig(t, large)
	assert.Equal(t, 480, largeCfg.Width)
	assert.Equal(t, 360, largeCfg.Height)

	thumbCfg, _ := decodeConfig(t, thumb)
	assert.Equal(t, 100, thumbCfg.Width)
	assert.Equal(t, 75, thumbCfg.Height)
}

func TestProcessMissingInput(t *testing.T) {
	dir := t.TempDir()

	_, err := runProcess(t, filepath.Join(dir, "missing.png"), filepath.Join(dir, "out.jpg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input file not found")
}

func TestProcessRequiresOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 10, 10)

	_, err := runProcess(t, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output path required")
}

func TestProcessRejectsInvalidOutputsJSON(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 10, 10)

	tests := []struct {
		name    string
		outputs string
	}{
		{name: "malformed json", outputs: `[{`},
		{name: "empty array", outputs: `[]`},
		{name: "missing path", outputs: `[{"height":100}]`},
		{name: "negative height", outputs: `[{"path":"out.jpg","height":-1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runProcess(t, input, "--outputs", tt.outputs)
			assert.Error(t, err)
		})
	}
}
