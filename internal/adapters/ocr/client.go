// Package ocr obtiene el texto de un ticket (imagen o PDF) vía la API HTTP
// de OCR.space. La calidad del OCR no es cosa nuestra: aquí solo hay
// transporte, rate limiting y retries.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandrodnm/surebet/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.ocr.space"
	parsePath      = "/parse/image"

	// Plan gratuito: 500 req/día, ráfagas cortas. 1/s es de sobra para un humano.
	defaultRatePerSec = 1
	defaultTimeout    = 30 * time.Second

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// MaxDocumentBytes es el tope del plan gratuito.
	MaxDocumentBytes = 1 << 20
)

// ErrNoText indica que el servicio respondió pero no reconoció texto.
var ErrNoText = errors.New("ocr: no text recognised")

var _ ports.TextExtractor = (*Client)(nil)

// Config of the OCR client. Zero values take the defaults.
type Config struct {
	BaseURL    string
	APIKey     string
	RatePerSec float64
	Timeout    time.Duration
	RetryWait  time.Duration
	Language   string // eng, spa, ...
}

// Client es el HTTP client del servicio OCR con rate limiting y retries.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	language  string
	limiter   *rate.Limiter
	retryWait time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = baseRetryWait
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		language:  cfg.Language,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), 2),
		retryWait: cfg.RetryWait,
	}
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"` // string o []string según versión
}

// ExtractText sube el documento y devuelve el texto de todas las páginas.
func (c *Client) ExtractText(ctx context.Context, filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("ocr.ExtractText: empty document")
	}
	if len(content) > MaxDocumentBytes {
		return "", fmt.Errorf("ocr.ExtractText: document is %d bytes, limit %d", len(content), MaxDocumentBytes)
	}

	body, contentType, err := c.multipartBody(filename, content)
	if err != nil {
		return "", fmt.Errorf("ocr.ExtractText: build body: %w", err)
	}

	var out parseResponse
	err = c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+parsePath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("apikey", c.apiKey)
		return c.http.Do(req)
	}, &out)
	if err != nil {
		return "", fmt.Errorf("ocr.ExtractText: %w", err)
	}

	if out.IsErroredOnProcessing {
		return "", fmt.Errorf("ocr.ExtractText: processing failed: %s", errorMessage(out.ErrorMessage))
	}
	var pages []string
	for _, r := range out.ParsedResults {
		if t := strings.TrimSpace(r.ParsedText); t != "" {
			pages = append(pages, t)
		}
	}
	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n"), nil
}

func (c *Client) multipartBody(filename string, content []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if filename == "" {
		filename = "slip.png"
	}
	fields := map[string]string{
		"language":          c.language,
		"isOverlayRequired": "false",
		"scale":             "true",
		"OCREngine":         "2",
	}
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		fields["filetype"] = "PDF"
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el rate limiter.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by OCR API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func errorMessage(raw json.RawMessage) string {
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
