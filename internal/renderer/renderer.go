// Package renderer turns web pages into PDF documents with a headless
// browser.
package renderer

import "context"

// Renderer produces a PDF from a navigable URL.
type Renderer interface {
	RenderPDF(ctx context.Context, url string) ([]byte, error)
}
