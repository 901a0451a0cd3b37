package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/surebet/internal/application/settlement"
	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type handlers struct {
	svc     *settlement.Service
	timeout time.Duration
	maxBody int64
}

// createSetRequest admite event_date como RFC3339 o YYYY-MM-DD.
type createSetRequest struct {
	Event      string            `json:"event"`
	Sport      string            `json:"sport"`
	EventDate  string            `json:"event_date"`
	Percentage decimal.Decimal   `json:"percentage"`
	Legs       []domain.LegInput `json:"legs"`
}

type outcomeRequest struct {
	Outcome string `json:"outcome"`
}

type previewRequest struct {
	Legs []domain.PreviewInput `json:"legs"`
}

type listResponse struct {
	Sets          []domain.BetSet `json:"sets"`
	Count         int             `json:"count"`
	SkippedSetIDs []string        `json:"skipped_set_ids,omitempty"`
}

type extractResponse struct {
	Fields domain.BetSlipFields `json:"fields"`
	Text   string               `json:"text"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "surebet",
	})
}

func (h *handlers) createSet(w http.ResponseWriter, r *http.Request) {
	var req createSetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Legs) != 2 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("a set needs exactly 2 legs, got %d", len(req.Legs)))
		return
	}
	in := domain.NewSetInput{
		Event:      strings.TrimSpace(req.Event),
		Sport:      req.Sport,
		Percentage: req.Percentage,
		Legs:       [2]domain.LegInput{req.Legs[0], req.Legs[1]},
	}
	if req.EventDate != "" {
		t, err := parseDate(req.EventDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.EventDate = t
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	set, err := h.svc.CreateSet(ctx, in)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, set)
}

func (h *handlers) listSets(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	sets, faults, err := h.svc.ListSets(ctx, f)
	if err != nil {
		respondFault(w, err)
		return
	}
	resp := listResponse{Sets: sets, Count: len(sets)}
	if resp.Sets == nil {
		resp.Sets = []domain.BetSet{}
	}
	for _, rf := range faults {
		resp.SkippedSetIDs = append(resp.SkippedSetIDs, rf.SetID)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) getSet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	set, err := h.svc.GetSet(ctx, chi.URLParam(r, "setID"))
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (h *handlers) deleteSet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.svc.DeleteSet(ctx, chi.URLParam(r, "setID")); err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateLeg(w http.ResponseWriter, r *http.Request) {
	var patch domain.LegPatch
	if !h.decode(w, r, &patch) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	set, err := h.svc.UpdateLeg(ctx, chi.URLParam(r, "setID"), chi.URLParam(r, "legID"), patch)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (h *handlers) applyOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	set, err := h.svc.ApplyOutcome(ctx, chi.URLParam(r, "setID"), chi.URLParam(r, "legID"), strings.ToLower(strings.TrimSpace(req.Outcome)))
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (h *handlers) resetSet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	set, err := h.svc.ResetSet(ctx, chi.URLParam(r, "setID"))
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	sum, err := h.svc.Dashboard(ctx, f)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *handlers) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Legs) != 2 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("a preview needs exactly 2 legs, got %d", len(req.Legs)))
		return
	}
	p, err := h.svc.Preview([2]domain.PreviewInput{req.Legs[0], req.Legs[1]})
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// extract acepta multipart con un campo "file" (imagen o PDF) o "text", o
// bien el texto del ticket como cuerpo plano.
func (h *handlers) extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var (
		filename string
		content  []byte
		text     string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxBody); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
			return
		}
		text = r.FormValue("text")
		if file, hdr, err := r.FormFile("file"); err == nil {
			defer file.Close()
			filename = hdr.Filename
			if content, err = io.ReadAll(file); err != nil {
				respondError(w, http.StatusBadRequest, "read file: "+err.Error())
				return
			}
		}
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		text = string(body)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	fields, text, err := h.svc.ExtractSlip(ctx, filename, content, strings.TrimSpace(text))
	if err != nil {
		if domain.Kind(err) == "internal" {
			// fallo del proveedor de OCR, no nuestro
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, extractResponse{Fields: fields, Text: text})
}

// decode lee un cuerpo JSON acotado. Responde 400 y devuelve false si falla.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseFilter(r *http.Request) (domain.SetFilter, error) {
	q := r.URL.Query()
	var f domain.SetFilter

	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	status, err := domain.ParseStatus(q.Get("status"))
	if err != nil {
		return f, err
	}
	f.Status = status
	f.Bookmaker = strings.TrimSpace(q.Get("bookmaker"))

	if f.Limit, err = parseIntParam(q.Get("limit"), 0); err != nil {
		return f, fmt.Errorf("limit: %w", err)
	}
	if f.Offset, err = parseIntParam(q.Get("offset"), 0); err != nil {
		return f, fmt.Errorf("offset: %w", err)
	}
	return f, nil
}

func parseIntParam(value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must be >= 0, got %d", n)
	}
	return n, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want RFC3339 or YYYY-MM-DD", v)
	}
	return t, nil
}
