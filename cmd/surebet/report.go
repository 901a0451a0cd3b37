package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandrodnm/surebet/internal/application/settlement"
	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/ports"
)

// reportFilter construye el filtro de -days y -bookmaker. days = 0 no acota
// por fecha.
func reportFilter(days int, bookmaker string, now time.Time) domain.SetFilter {
	f := domain.SetFilter{Bookmaker: strings.TrimSpace(bookmaker)}
	if days > 0 {
		from := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
		f.From = &from
	}
	return f
}

func runReport(ctx context.Context, svc *settlement.Service, r ports.Reporter, f domain.SetFilter) error {
	sum, err := svc.Dashboard(ctx, f)
	if err != nil {
		return err
	}
	return r.PrintSummary(ctx, sum)
}

// runExtract lee uno o varios tickets y escribe los campos reconocidos como
// JSON. Los .txt se leen como texto; el resto (imagen, PDF) pasa por OCR.
// Con varios archivos la salida es un array y un fallo no detiene el resto.
func runExtract(ctx context.Context, svc *settlement.Service, paths []string, workers int, out io.Writer) error {
	docs := make([]settlement.Document, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %q: %w", path, err)
		}
		doc := settlement.Document{Name: filepath.Base(path), Content: content}
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			doc.Text, doc.Content = strings.TrimSpace(string(content)), nil
		}
		docs = append(docs, doc)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if len(docs) == 1 {
		fields, _, err := svc.ExtractSlip(ctx, docs[0].Name, docs[0].Content, docs[0].Text)
		if err != nil {
			return err
		}
		return enc.Encode(fields)
	}

	results := svc.ExtractBatch(ctx, docs, workers)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if err := enc.Encode(results); err != nil {
		return err
	}
	if failed == len(results) {
		return fmt.Errorf("all %d documents failed", failed)
	}
	return nil
}

// logSummaries imprime el dashboard compacto cada interval hasta que ctx
// se cancele. Un fallo puntual se loguea y no detiene el servidor.
func logSummaries(ctx context.Context, svc *settlement.Service, r ports.Reporter, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := runReport(ctx, svc, r, domain.SetFilter{}); err != nil {
				slog.Warn("periodic summary failed", "err", err)
			}
		}
	}
}
