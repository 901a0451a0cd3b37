// Package settlement orquesta el ciclo de vida de los surebets: alta,
// edición de patas, liquidación, reset y dashboard. Las reglas de cálculo
// viven en domain; aquí solo hay transacciones, cache, métricas y logs.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/metrics"
	"github.com/alejandrodnm/surebet/internal/ports"
	"github.com/google/uuid"
)

// Service es el punto de entrada de todas las operaciones sobre sets.
type Service struct {
	store      ports.BetStore
	cache      ports.SetCache
	extractor  ports.TextExtractor
	metrics    *metrics.Metrics
	bookmakers []string
	now        func() time.Time
	newID      func() string
}

// Option configura el Service.
type Option func(*Service)

// WithClock fija el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs fija el generador de ids (tests).
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithExtractor habilita la extracción de tickets desde imagen/PDF.
func WithExtractor(x ports.TextExtractor) Option {
	return func(s *Service) { s.extractor = x }
}

// WithBookmakers sustituye la lista de casas reconocidas en los tickets.
func WithBookmakers(names []string) Option {
	return func(s *Service) { s.bookmakers = names }
}

// New crea un Service con todas las dependencias inyectadas. cache puede ser
// nil (sin cache); m puede ser nil (métricas en un registry descartable).
func New(store ports.BetStore, cache ports.SetCache, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cache:   cache,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSet valida el input, calcula el potential de las dos patas y lo
// persiste atómicamente. Con input inválido no se escribe nada.
func (s *Service) CreateSet(ctx context.Context, in domain.NewSetInput) (domain.BetSet, error) {
	set, err := domain.NewBetSet(in, s.now(), s.newID)
	if err != nil {
		return domain.BetSet{}, s.fault("create", "", err)
	}
	if err := s.store.CreateSet(ctx, set); err != nil {
		return domain.BetSet{}, s.fault("create", set.ID, err)
	}
	s.cache.Put(ctx, set)
	s.metrics.SetsCreated.Inc()

	slog.Info("set created",
		"set_id", set.ID,
		"event", set.Event,
		"potential_a", set.Legs[0].PotentialProfit.String(),
		"potential_b", set.Legs[1].PotentialProfit.String(),
	)
	return set, nil
}

// GetSet devuelve el set, primero desde la cache.
func (s *Service) GetSet(ctx context.Context, id string) (domain.BetSet, error) {
	if set, ok := s.cache.Get(ctx, id); ok {
		return set, nil
	}
	set, err := s.store.GetSet(ctx, id)
	if err != nil {
		return domain.BetSet{}, s.fault("get", id, err)
	}
	s.cache.Put(ctx, set)
	return set, nil
}

// ListSets lista sin usar la cache. Los registros corruptos se registran y se
// devuelven aparte.
func (s *Service) ListSets(ctx context.Context, f domain.SetFilter) ([]domain.BetSet, []domain.RecordFault, error) {
	sets, faults, err := s.store.ListSets(ctx, f)
	if err != nil {
		return nil, nil, s.fault("list", "", err)
	}
	for _, rf := range faults {
		s.logRecordFault("list", rf)
	}
	return sets, faults, nil
}

// UpdateLeg edita una pata y recalcula el potential de ambas. Si el set ya
// estaba liquidado, el actualProfit se recalcula con los nuevos importes.
func (s *Service) UpdateLeg(ctx context.Context, setID, legID string, p domain.LegPatch) (domain.BetSet, error) {
	now := s.now()
	_, set, err := s.mutate(ctx, "update_leg", setID, func(b *domain.BetSet) error {
		return b.UpdateLeg(legID, p, now)
	})
	if err != nil {
		return domain.BetSet{}, err
	}
	if p.Stake != nil || p.Odd != nil {
		s.metrics.Recalculations.Inc()
	}
	slog.Info("leg updated", "set_id", setID, "leg_id", legID, "status", set.Status)
	return set, nil
}

// ApplyOutcome marca el outcome de una pata; cuando las dos lo tienen, el set
// queda liquidado en la misma transacción.
func (s *Service) ApplyOutcome(ctx context.Context, setID, legID, outcome string) (domain.BetSet, error) {
	o, err := domain.ParseOutcome(outcome)
	if err != nil {
		return domain.BetSet{}, s.fault("apply_outcome", setID, err)
	}

	now := s.now()
	before, set, err := s.mutate(ctx, "apply_outcome", setID, func(b *domain.BetSet) error {
		return b.ApplyOutcome(legID, o, now)
	})
	if err != nil {
		return domain.BetSet{}, err
	}

	profit, resolved := set.Profit()
	if !resolved {
		slog.Info("outcome recorded, awaiting other leg", "set_id", setID, "leg_id", legID, "outcome", o)
		return set, nil
	}

	// un set resuelto solo acepta el mismo outcome: reaplicarlo no cuenta
	a, b := set.Pair()
	if before.Status != domain.StatusResolved {
		s.metrics.RecordSettlement(a.Outcome.String(), b.Outcome.String(), profit)
	}
	slog.Info("set settled",
		"set_id", setID,
		"outcome_a", a.Outcome,
		"outcome_b", b.Outcome,
		"actual_profit", profit.String(),
	)
	return set, nil
}

// ResetSet vuelve el set a pendiente. Un set sin outcomes no es un error.
func (s *Service) ResetSet(ctx context.Context, setID string) (domain.BetSet, error) {
	now := s.now()
	before, set, err := s.mutate(ctx, "reset", setID, func(b *domain.BetSet) error {
		return b.Reset(now)
	})
	if err != nil {
		return domain.BetSet{}, err
	}
	if hasOutcome(before) {
		s.metrics.Resets.Inc()
		slog.Info("set reset", "set_id", setID)
	}
	return set, nil
}

// DeleteSet borra el set y sus patas.
func (s *Service) DeleteSet(ctx context.Context, id string) error {
	if err := s.store.DeleteSet(ctx, id); err != nil {
		return s.fault("delete", id, err)
	}
	s.cache.Invalidate(ctx, id)
	slog.Info("set deleted", "set_id", id)
	return nil
}

// Dashboard agrega los sets coincidentes. Limit/Offset no aplican: el
// resumen siempre cubre todos los sets del filtro.
func (s *Service) Dashboard(ctx context.Context, f domain.SetFilter) (domain.Summary, error) {
	all := f
	all.Limit, all.Offset = 0, 0

	sets, faults, err := s.ListSets(ctx, all)
	if err != nil {
		return domain.Summary{}, err
	}
	sum := domain.Summarize(sets, faults, all)
	for _, rf := range sum.Faults[len(faults):] {
		s.logRecordFault("dashboard", rf)
	}
	return sum, nil
}

// Preview evalúa las fórmulas sin persistir nada.
func (s *Service) Preview(legs [2]domain.PreviewInput) (domain.Preview, error) {
	p, err := domain.NewPreview(legs)
	if err != nil {
		return domain.Preview{}, s.fault("preview", "", err)
	}
	return p, nil
}

// ExtractSlip reconoce los campos de un ticket. Con text vacío y un documento,
// el texto se obtiene por OCR.
func (s *Service) ExtractSlip(ctx context.Context, filename string, content []byte, text string) (domain.BetSlipFields, string, error) {
	source := "text"
	if text == "" {
		if len(content) == 0 {
			return domain.BetSlipFields{}, "", s.fault("extract", "", fmt.Errorf("%w: text or document required", domain.ErrValidation))
		}
		if s.extractor == nil {
			return domain.BetSlipFields{}, "", s.fault("extract", "", fmt.Errorf("%w: document extraction is not configured", domain.ErrValidation))
		}
		source = "ocr"
		var err error
		text, err = s.extractor.ExtractText(ctx, filename, content)
		if err != nil {
			s.metrics.RecordExtract(source, "error")
			return domain.BetSlipFields{}, "", fmt.Errorf("settlement.ExtractSlip: %w", err)
		}
	}
	s.metrics.RecordExtract(source, "ok")
	return domain.ExtractBetSlip(text, s.bookmakers), text, nil
}

// Ping comprueba el store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// mutate aplica fn al set de forma transaccional. Si el set está en cache,
// se actualiza de forma optimista antes de escribir y se restaura el estado
// previo si la escritura falla. fn debe ser determinista: puede ejecutarse
// dos veces (sobre la cache y dentro de la transacción).
//
// La entrada optimista conserva la versión de partida y el set confirmado
// trae la siguiente, así que los Put de escrituras concurrentes no pueden
// dejar en cache una vista anterior a la del store.
func (s *Service) mutate(ctx context.Context, op, id string, fn func(*domain.BetSet) error) (before, after domain.BetSet, err error) {
	prev, cached := s.cache.Get(ctx, id)
	if cached {
		optimistic := prev.Clone()
		if err := fn(&optimistic); err == nil {
			s.cache.Put(ctx, optimistic)
		} else {
			// la cache puede estar desfasada; que decida el store
			cached = false
		}
	}

	after, err = s.store.UpdateSet(ctx, id, func(b *domain.BetSet) error {
		before = b.Clone()
		return fn(b)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			s.cache.Invalidate(ctx, id)
		case cached:
			s.cache.Put(ctx, prev)
			s.metrics.CacheRollbacks.Inc()
			slog.Warn("cache rolled back", "op", op, "set_id", id, "err", err)
		}
		return domain.BetSet{}, domain.BetSet{}, s.fault(op, id, err)
	}
	s.cache.Put(ctx, after)
	return before, after, nil
}

// fault registra el error por tipo y lo devuelve sin cambios.
func (s *Service) fault(op, setID string, err error) error {
	kind := domain.Kind(err)
	s.metrics.RecordFault(kind)
	switch kind {
	case "validation", "not_found":
		slog.Debug("request rejected", "op", op, "set_id", setID, "kind", kind, "err", err)
	default:
		slog.Error("operation failed", "op", op, "set_id", setID, "kind", kind, "err", err)
	}
	return err
}

func (s *Service) logRecordFault(op string, rf domain.RecordFault) {
	s.metrics.RecordFault(domain.Kind(rf))
	slog.Warn("skipping corrupt record", "op", op, "set_id", rf.SetID, "kind", domain.Kind(rf), "err", rf.Err)
}

func hasOutcome(set domain.BetSet) bool {
	for _, l := range set.Legs {
		if l.Outcome.IsSet() {
			return true
		}
	}
	return set.Status == domain.StatusResolved
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (domain.BetSet, bool) { return domain.BetSet{}, false }
func (nopCache) Put(context.Context, domain.BetSet)                {}
func (nopCache) Invalidate(context.Context, string)                {}
