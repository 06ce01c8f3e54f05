//go:build onnx

package main

import (
	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/onnx"
)

func newONNXEmbedder(c config.Embedder) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     c.ModelPath,
		TokenizerPath: c.TokenizerPath,
		LibraryPath:   c.LibraryPath,
		Dimensions:    c.Dimensions,
	})
}
