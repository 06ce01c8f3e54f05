//go:build !onnx

package main

import (
	"errors"

	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/memory"
)

func newONNXEmbedder(config.Embedder) (memory.Embedder, error) {
	return nil, errors.New("onnx embedder not available: rebuild with -tags onnx")
}
