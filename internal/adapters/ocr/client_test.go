package ocr_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/surebet/internal/adapters/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *ocr.Client {
	return ocr.NewClient(ocr.Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		RatePerSec: 1000,
		RetryWait:  time.Millisecond,
	})
}

func TestExtractText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse/image", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "PDF", r.FormValue("filetype"))
		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			assert.Equal(t, "ticket.pdf", hdr.Filename)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ParsedResults":[{"ParsedText":"bet365\r\nStake: 10"},{"ParsedText":"Odds 1.85"}],"IsErroredOnProcessing":false}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv).ExtractText(context.Background(), "ticket.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Contains(t, text, "Stake: 10")
	assert.Contains(t, text, "Odds 1.85")
}

func TestExtractText_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ParsedResults":[{"ParsedText":"ok"}]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv).ExtractText(context.Background(), "a.png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtractText_ClientErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ExtractText(context.Background(), "a.png", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractText_ProcessingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["File failed validation"]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ExtractText(context.Background(), "a.png", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File failed validation")
}

func TestExtractText_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ParsedResults":[{"ParsedText":"  "}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ExtractText(context.Background(), "a.png", []byte("x"))
	assert.True(t, errors.Is(err, ocr.ErrNoText))
}

func TestExtractText_RejectsOversized(t *testing.T) {
	c := ocr.NewClient(ocr.Config{BaseURL: "http://127.0.0.1:0"})
	_, err := c.ExtractText(context.Background(), "a.png", make([]byte, ocr.MaxDocumentBytes+1))
	require.Error(t, err)

	_, err = c.ExtractText(context.Background(), "a.png", nil)
	require.Error(t, err)
}
