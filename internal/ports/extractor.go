package ports

import "context"

// TextExtractor convierte una imagen o PDF de un ticket en texto plano.
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, content []byte) (string, error)
}
