package storage

// records.go — conversión entre filas y dominio, común a SQLite y Postgres.
//
// Los importes viajan como texto: la DB nunca ve un float. Al leer, un valor
// que no parsea como decimal es un fallo aritmético del registro; un outcome
// o status desconocido es un fallo de integridad.

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/shopspring/decimal"
)

type setRecord struct {
	id         string
	event      string
	sport      string
	eventDate  time.Time
	percentage string
	status     string
	version    int64
	createdAt  time.Time
	updatedAt  time.Time
}

type legRecord struct {
	id        string
	setID     string
	position  int
	bookmaker string
	selection string
	stake     string
	odd       string
	outcome   *string
	potential string
	actual    *string
}

// legValues devuelve los campos nullable listos para el driver.
func legValues(l domain.BetLeg) (outcome, actual *string) {
	if l.Outcome.IsSet() {
		o := string(l.Outcome)
		outcome = &o
	}
	if l.ActualProfit.Valid {
		a := l.ActualProfit.Decimal.String()
		actual = &a
	}
	return outcome, actual
}

func parseDecimal(setID, field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, domain.Arithmeticf("set %s: %s %q is not a number", setID, field, raw)
	}
	return d, nil
}

func (r legRecord) decode() (domain.BetLeg, error) {
	l := domain.BetLeg{
		ID:        r.id,
		SetID:     r.setID,
		Position:  r.position,
		Bookmaker: r.bookmaker,
		Selection: r.selection,
	}
	var err error
	if l.Stake, err = parseDecimal(r.setID, "stake", r.stake); err != nil {
		return l, err
	}
	if l.Odd, err = parseDecimal(r.setID, "odd", r.odd); err != nil {
		return l, err
	}
	if l.PotentialProfit, err = parseDecimal(r.setID, "potential_profit", r.potential); err != nil {
		return l, err
	}
	if r.actual != nil {
		a, err := parseDecimal(r.setID, "actual_profit", *r.actual)
		if err != nil {
			return l, err
		}
		l.ActualProfit = decimal.NewNullDecimal(a)
	}
	if r.outcome != nil && *r.outcome != "" {
		o, err := domain.ParseOutcome(*r.outcome)
		if err != nil {
			return l, domain.Integrityf("set %s: leg %s stored outcome %q", r.setID, r.id, *r.outcome)
		}
		l.Outcome = o
	}
	return l, nil
}

// assemble construye el set. No exige las dos patas: la aridad la valida el
// dominio al liquidar o al agregar.
func assemble(r setRecord, legs []legRecord) (domain.BetSet, error) {
	set := domain.BetSet{
		ID:        r.id,
		Event:     r.event,
		Sport:     r.sport,
		EventDate: r.eventDate.UTC(),
		Version:   r.version,
		CreatedAt: r.createdAt.UTC(),
		UpdatedAt: r.updatedAt.UTC(),
	}
	var err error
	if set.Percentage, err = parseDecimal(r.id, "percentage", r.percentage); err != nil {
		return set, err
	}
	status, err := domain.ParseStatus(r.status)
	if err != nil || status == "" {
		return set, domain.Integrityf("set %s: stored status %q", r.id, r.status)
	}
	set.Status = status

	for _, lr := range legs {
		l, err := lr.decode()
		if err != nil {
			return set, err
		}
		set.Legs = append(set.Legs, l)
	}
	return set, nil
}

// dialect recoge lo que cambia entre SQLite y Postgres al construir queries.
type dialect struct {
	placeholder func(n int) string // ? en SQLite, $n en Postgres
	timeArg     func(t time.Time) any
	noLimit     string // LIMIT sin tope cuando solo hay OFFSET
}

// filterClause traduce el filtro a un WHERE sobre bet_sets s.
func (d dialect) filterClause(f domain.SetFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, d.placeholder(len(args))))
	}

	if f.From != nil {
		add("s.event_date >= %s", d.timeArg(*f.From))
	}
	if f.To != nil {
		add("s.event_date < %s", d.timeArg(*f.To))
	}
	if f.Status != "" {
		add("s.status = %s", string(f.Status))
	}
	if f.Bookmaker != "" {
		add("EXISTS (SELECT 1 FROM bet_legs b WHERE b.set_id = s.id AND b.bookmaker_key = %s)", domain.BookmakerKey(f.Bookmaker))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return where, args
}

func (d dialect) limitClause(f domain.SetFilter) string {
	switch {
	case f.Limit > 0 && f.Offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	case f.Limit > 0:
		return fmt.Sprintf(" LIMIT %d", f.Limit)
	case f.Offset > 0:
		return fmt.Sprintf(" LIMIT %s OFFSET %d", d.noLimit, f.Offset)
	}
	return ""
}
