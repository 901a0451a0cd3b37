package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome es el resultado de una pata. La cadena vacía significa pendiente.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeWon      Outcome = "won"
	OutcomeLost     Outcome = "lost"
	OutcomeReturned Outcome = "returned"
)

// ParseOutcome valida un outcome recibido del exterior.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeWon, OutcomeLost, OutcomeReturned:
		return o, nil
	default:
		return OutcomeNone, validationf("outcome %q not in won|lost|returned", s)
	}
}

// IsSet reports whether the leg already carries an outcome.
func (o Outcome) IsSet() bool { return o != OutcomeNone }

func (o Outcome) String() string {
	if o == OutcomeNone {
		return "pending"
	}
	return string(o)
}

// SetStatus es el estado agregado de un surebet.
type SetStatus string

const (
	StatusPending  SetStatus = "pending"
	StatusResolved SetStatus = "resolved"
)

// ParseStatus acepta "pending", "resolved" o vacío (sin filtro).
func ParseStatus(s string) (SetStatus, error) {
	switch st := SetStatus(s); st {
	case "", StatusPending, StatusResolved:
		return st, nil
	default:
		return "", validationf("status %q not in pending|resolved", s)
	}
}

// BetLeg is one wager of a surebet.
type BetLeg struct {
	ID              string              `json:"id"`
	SetID           string              `json:"set_id"`
	Position        int                 `json:"position"` // 0 = A, 1 = B
	Bookmaker       string              `json:"bookmaker"`
	Selection       string              `json:"selection,omitempty"`
	Stake           decimal.Decimal     `json:"stake"`
	Odd             decimal.Decimal     `json:"odd"`
	Outcome         Outcome             `json:"outcome,omitempty"`
	PotentialProfit decimal.Decimal     `json:"potential_profit"`
	ActualProfit    decimal.NullDecimal `json:"actual_profit"`
}

// BetSet is one two-way arbitrage opportunity: exactly two legs.
type BetSet struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Sport      string          `json:"sport,omitempty"`
	EventDate  time.Time       `json:"event_date"`
	Percentage decimal.Decimal `json:"percentage"`
	Status     SetStatus       `json:"status"`
	Legs       []BetLeg        `json:"legs"`
	Version    int64           `json:"version"` // sube en cada escritura confirmada
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Clone devuelve una copia profunda (los legs no comparten backing array).
func (s BetSet) Clone() BetSet {
	out := s
	out.Legs = append([]BetLeg(nil), s.Legs...)
	return out
}

// Leg devuelve un puntero a la pata con el id dado.
func (s *BetSet) Leg(legID string) (*BetLeg, error) {
	for i := range s.Legs {
		if s.Legs[i].ID == legID {
			return &s.Legs[i], nil
		}
	}
	return nil, notFoundf("leg %s in set %s", legID, s.ID)
}

// BookmakerKey normaliza el nombre de una casa para compararlo. Es la misma
// clave que los stores guardan en bet_legs.bookmaker_key.
func BookmakerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasBookmaker reports whether either leg was placed at the given bookmaker.
func (s BetSet) HasBookmaker(bookmaker string) bool {
	key := BookmakerKey(bookmaker)
	for _, l := range s.Legs {
		if BookmakerKey(l.Bookmaker) == key {
			return true
		}
	}
	return false
}

// CheckIntegrity verifica la aridad fija de dos patas.
func (s BetSet) CheckIntegrity() error {
	if len(s.Legs) != 2 {
		return integrityf("set %s has %d legs, want 2", s.ID, len(s.Legs))
	}
	if s.Legs[0].Position == s.Legs[1].Position {
		return integrityf("set %s has two legs at position %d", s.ID, s.Legs[0].Position)
	}
	return nil
}

// LegInput is the user-provided part of a leg.
type LegInput struct {
	Bookmaker string          `json:"bookmaker"`
	Selection string          `json:"selection,omitempty"`
	Stake     decimal.Decimal `json:"stake"`
	Odd       decimal.Decimal `json:"odd"`
}

// NewSetInput is the payload for creating a set with its two legs.
type NewSetInput struct {
	Event      string          `json:"event"`
	Sport      string          `json:"sport,omitempty"`
	EventDate  time.Time       `json:"event_date"`
	Percentage decimal.Decimal `json:"percentage"`
	Legs       [2]LegInput     `json:"legs"`
}

// NewBetSet valida el input y construye el set con sus dos patas ya calculadas.
// Los ids se asignan con newID (uuid en producción).
func NewBetSet(in NewSetInput, now time.Time, newID func() string) (BetSet, error) {
	if in.Event == "" {
		return BetSet{}, validationf("event is required")
	}
	for i, l := range in.Legs {
		if err := ValidateStakeOdd(l.Stake, l.Odd); err != nil {
			return BetSet{}, withLeg(i, err)
		}
	}
	if in.EventDate.IsZero() {
		in.EventDate = now
	}

	set := BetSet{
		ID:         newID(),
		Event:      in.Event,
		Sport:      in.Sport,
		EventDate:  in.EventDate.UTC(),
		Percentage: in.Percentage,
		Status:     StatusPending,
		Version:    1,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	for i, l := range in.Legs {
		set.Legs = append(set.Legs, BetLeg{
			ID:        newID(),
			SetID:     set.ID,
			Position:  i,
			Bookmaker: l.Bookmaker,
			Selection: l.Selection,
			Stake:     l.Stake,
			Odd:       l.Odd,
		})
	}
	set.recalculate()
	return set, nil
}

// ValidateStakeOdd rechaza stake <= 0 y odd < 1.
func ValidateStakeOdd(stake, odd decimal.Decimal) error {
	if !stake.IsPositive() {
		return validationf("stake must be > 0, got %s", stake)
	}
	if odd.LessThan(decimal.NewFromInt(1)) {
		return validationf("odd must be >= 1, got %s", odd)
	}
	return nil
}

// LegPatch lists the editable fields of a leg. Nil means unchanged.
type LegPatch struct {
	Bookmaker *string          `json:"bookmaker,omitempty"`
	Selection *string          `json:"selection,omitempty"`
	Stake     *decimal.Decimal `json:"stake,omitempty"`
	Odd       *decimal.Decimal `json:"odd,omitempty"`
}

// UpdateLeg aplica el patch y recalcula el potential profit de AMBAS patas,
// porque la fórmula de cada una depende del stake de la otra. Si el set ya
// estaba resuelto, el actualProfit se recalcula con los nuevos importes.
func (s *BetSet) UpdateLeg(legID string, p LegPatch, now time.Time) error {
	if err := s.CheckIntegrity(); err != nil {
		return err
	}
	leg, err := s.Leg(legID)
	if err != nil {
		return err
	}

	stake, odd := leg.Stake, leg.Odd
	if p.Stake != nil {
		stake = *p.Stake
	}
	if p.Odd != nil {
		odd = *p.Odd
	}
	if err := ValidateStakeOdd(stake, odd); err != nil {
		return withLeg(leg.Position, err)
	}

	leg.Stake, leg.Odd = stake, odd
	if p.Bookmaker != nil {
		leg.Bookmaker = *p.Bookmaker
	}
	if p.Selection != nil {
		leg.Selection = *p.Selection
	}

	s.recalculate()
	s.settle()
	s.UpdatedAt = now.UTC()
	return nil
}

// ApplyOutcome marca el outcome de una pata y, si las dos ya tienen outcome,
// liquida el set. Con una sola pata marcada el set sigue pendiente. Un set
// resuelto solo acepta el mismo outcome; cambiarlo exige Reset.
func (s *BetSet) ApplyOutcome(legID string, o Outcome, now time.Time) error {
	if !o.IsSet() {
		return validationf("outcome is required")
	}
	if _, err := ParseOutcome(string(o)); err != nil {
		return err
	}
	if err := s.CheckIntegrity(); err != nil {
		return err
	}
	leg, err := s.Leg(legID)
	if err != nil {
		return err
	}
	if s.Status == StatusResolved && leg.Outcome != o {
		return validationf("set %s is resolved; reset it before changing leg %s", s.ID, legID)
	}
	leg.Outcome = o
	s.settle()
	s.UpdatedAt = now.UTC()
	return nil
}

// Reset vuelve el set a pendiente. Sobre un set sin outcomes no cambia nada.
func (s *BetSet) Reset(now time.Time) error {
	if err := s.CheckIntegrity(); err != nil {
		return err
	}
	changed := s.Status != StatusPending
	for i := range s.Legs {
		if s.Legs[i].Outcome.IsSet() || s.Legs[i].ActualProfit.Valid {
			changed = true
		}
		s.Legs[i].Outcome = OutcomeNone
		s.Legs[i].ActualProfit = decimal.NullDecimal{}
	}
	s.Status = StatusPending
	if changed {
		s.UpdatedAt = now.UTC()
	}
	return nil
}

// ordered devuelve las patas A y B según Position.
func (s *BetSet) ordered() (a, b *BetLeg) {
	a, b = &s.Legs[0], &s.Legs[1]
	if a.Position > b.Position {
		a, b = b, a
	}
	return a, b
}

// Pair returns legs A and B. The set must pass CheckIntegrity.
func (s BetSet) Pair() (a, b BetLeg) {
	pa, pb := s.ordered()
	return *pa, *pb
}

func (s *BetSet) recalculate() {
	a, b := s.ordered()
	a.PotentialProfit, b.PotentialProfit = PotentialProfit(*a, *b)
}

// settle mantiene el invariante status=resolved <=> ambas patas con outcome.
func (s *BetSet) settle() {
	a, b := s.ordered()
	profit, ok := Settle(*a, *b)
	if !ok {
		a.ActualProfit = decimal.NullDecimal{}
		b.ActualProfit = decimal.NullDecimal{}
		s.Status = StatusPending
		return
	}
	// El profit es del par, no de una pata: mismo valor en las dos filas.
	a.ActualProfit = decimal.NewNullDecimal(profit)
	b.ActualProfit = decimal.NewNullDecimal(profit)
	s.Status = StatusResolved
}

// RepresentativePotential is the potential profit used for pending sets in
// reports: the one of leg A.
func (s BetSet) RepresentativePotential() decimal.Decimal {
	a, _ := s.ordered()
	return a.PotentialProfit
}

// Profit devuelve el actualProfit del set si está resuelto.
func (s BetSet) Profit() (decimal.Decimal, bool) {
	a, _ := s.ordered()
	if s.Status != StatusResolved || !a.ActualProfit.Valid {
		return decimal.Zero, false
	}
	return a.ActualProfit.Decimal, true
}
