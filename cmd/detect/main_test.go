package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: detect")
	assert.Empty(t, stdout.String())

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"-nope", "leaf.jpg"}, &stdout, &stderr))
}

func TestRun_MissingModel(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "leaf.png")
	f, err := os.Create(imagePath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())

	var stdout, stderr bytes.Buffer
	code := run([]string{"-model", filepath.Join(dir, "absent.onnx"), imagePath}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "model not found")
}
