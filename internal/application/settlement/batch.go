package settlement

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/surebet/internal/domain"
)

// Document es un ticket a extraer: texto plano o contenido para OCR.
type Document struct {
	Name    string
	Content []byte
	Text    string
}

// ExtractResult es el resultado de un Document, en la misma posición que su
// entrada. Err != nil deja Fields vacío.
type ExtractResult struct {
	Name   string               `json:"name"`
	Fields domain.BetSlipFields `json:"fields"`
	Err    error                `json:"-"`
	Error  string               `json:"error,omitempty"`
}

// ExtractBatch extrae varios tickets en paralelo con un worker pool. El rate
// limiter del cliente OCR sigue acotando las llamadas salientes; los workers
// solo solapan la espera de las respuestas.
//
// Si workers <= 0 usa runtime.NumCPU().
func (s *Service) ExtractBatch(ctx context.Context, docs []Document, workers int) []ExtractResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(docs), 1))

	type work struct {
		idx int
		doc Document
	}

	workCh := make(chan work, len(docs))
	results := make([]ExtractResult, len(docs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				res := ExtractResult{Name: w.doc.Name}
				if err := ctx.Err(); err != nil {
					res.Err = err
				} else {
					res.Fields, _, res.Err = s.ExtractSlip(ctx, w.doc.Name, w.doc.Content, w.doc.Text)
				}
				if res.Err != nil {
					res.Error = res.Err.Error()
					slog.Debug("extract failed", "name", w.doc.Name, "err", res.Err)
				}
				// cada worker escribe solo su índice
				results[w.idx] = res
			}
		}()
	}

	for i, doc := range docs {
		workCh <- work{idx: i, doc: doc}
	}
	close(workCh)
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Debug("batch extraction complete",
		"documents", len(docs),
		"failed", failed,
		"workers", workers,
	)
	return results
}
