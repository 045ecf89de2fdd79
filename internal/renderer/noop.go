package renderer

import (
	"context"
	"errors"
)

// Noop implements Renderer but always returns an error to indicate that
// headless rendering is not available in the current build.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// RenderPDF returns an error since this is a stub implementation.
func (Noop) RenderPDF(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("renderer not configured")
}
