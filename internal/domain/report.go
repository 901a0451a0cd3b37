package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SetFilter selects sets for listing and reporting. Zero values mean no filter.
type SetFilter struct {
	From      *time.Time // EventDate >= From
	To        *time.Time // EventDate <  To
	Bookmaker string     // any leg at this bookmaker (case-insensitive)
	Status    SetStatus
	Limit     int
	Offset    int
}

// Match aplica el filtro en memoria (los stores lo aplican en SQL).
func (f SetFilter) Match(s BetSet) bool {
	if f.From != nil && s.EventDate.Before(*f.From) {
		return false
	}
	if f.To != nil && !s.EventDate.Before(*f.To) {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Bookmaker != "" && !s.HasBookmaker(f.Bookmaker) {
		return false
	}
	return true
}

// BookmakerSummary agrega las patas colocadas en una casa.
type BookmakerSummary struct {
	Bookmaker string          `json:"bookmaker"`
	Legs      int             `json:"legs"`
	Staked    decimal.Decimal `json:"staked"`
	Won       int             `json:"won"`
	Lost      int             `json:"lost"`
	Returned  int             `json:"returned"`
}

// DailySummary es una fila de la serie temporal del dashboard.
type DailySummary struct {
	Date            time.Time       `json:"date"`
	Resolved        int             `json:"resolved"`
	Pending         int             `json:"pending"`
	ActualProfit    decimal.Decimal `json:"actual_profit"`
	PotentialProfit decimal.Decimal `json:"potential_profit"`
}

// Summary is the dashboard aggregate.
type Summary struct {
	Filter          SetFilter          `json:"-"`
	Sets            int                `json:"sets"`
	Resolved        int                `json:"resolved"`
	Pending         int                `json:"pending"`
	Staked          decimal.Decimal    `json:"staked"`
	ResolvedStaked  decimal.Decimal    `json:"resolved_staked"`
	ActualProfit    decimal.Decimal    `json:"actual_profit"`
	PotentialProfit decimal.Decimal    `json:"potential_profit"`
	ROIPct          decimal.Decimal    `json:"roi_pct"` // actual / resolved staked × 100, 2 decimales
	ByBookmaker     []BookmakerSummary `json:"by_bookmaker"`
	ByDay           []DailySummary     `json:"by_day"`
	Faults          []RecordFault      `json:"-"`
	SkippedSetIDs   []string           `json:"skipped_set_ids,omitempty"`
}

// Summarize reduce los sets al resumen del dashboard: actualProfit de los
// resueltos y potentialProfit de la pata representativa de los pendientes.
// Los sets corruptos se saltan y se reportan en Faults junto con los que
// el store ya no pudo leer.
func Summarize(sets []BetSet, faults []RecordFault, f SetFilter) Summary {
	sum := Summary{
		Filter:          f,
		Staked:          decimal.Zero,
		ResolvedStaked:  decimal.Zero,
		ActualProfit:    decimal.Zero,
		PotentialProfit: decimal.Zero,
		ROIPct:          decimal.Zero,
		Faults:          append([]RecordFault(nil), faults...),
	}
	books := make(map[string]*BookmakerSummary)
	days := make(map[time.Time]*DailySummary)

	for _, s := range sets {
		if !f.Match(s) {
			continue
		}
		if err := s.CheckIntegrity(); err != nil {
			sum.Faults = append(sum.Faults, RecordFault{SetID: s.ID, Err: err})
			continue
		}

		day := s.EventDate.UTC().Truncate(24 * time.Hour)
		d, ok := days[day]
		if !ok {
			d = &DailySummary{Date: day, ActualProfit: decimal.Zero, PotentialProfit: decimal.Zero}
			days[day] = d
		}

		staked := s.Legs[0].Stake.Add(s.Legs[1].Stake)
		sum.Sets++
		sum.Staked = sum.Staked.Add(staked)

		if profit, resolved := s.Profit(); resolved {
			sum.Resolved++
			sum.ResolvedStaked = sum.ResolvedStaked.Add(staked)
			sum.ActualProfit = sum.ActualProfit.Add(profit)
			d.Resolved++
			d.ActualProfit = d.ActualProfit.Add(profit)
		} else {
			potential := s.RepresentativePotential()
			sum.Pending++
			sum.PotentialProfit = sum.PotentialProfit.Add(potential)
			d.Pending++
			d.PotentialProfit = d.PotentialProfit.Add(potential)
		}

		for _, l := range s.Legs {
			b, ok := books[l.Bookmaker]
			if !ok {
				b = &BookmakerSummary{Bookmaker: l.Bookmaker, Staked: decimal.Zero}
				books[l.Bookmaker] = b
			}
			b.Legs++
			b.Staked = b.Staked.Add(l.Stake)
			switch l.Outcome {
			case OutcomeWon:
				b.Won++
			case OutcomeLost:
				b.Lost++
			case OutcomeReturned:
				b.Returned++
			}
		}
	}

	if sum.ResolvedStaked.IsPositive() {
		sum.ROIPct = sum.ActualProfit.Div(sum.ResolvedStaked).Mul(decimal.NewFromInt(100)).Round(2)
	}

	for _, b := range books {
		sum.ByBookmaker = append(sum.ByBookmaker, *b)
	}
	sort.Slice(sum.ByBookmaker, func(i, j int) bool {
		return sum.ByBookmaker[i].Bookmaker < sum.ByBookmaker[j].Bookmaker
	})

	for _, d := range days {
		sum.ByDay = append(sum.ByDay, *d)
	}
	sort.Slice(sum.ByDay, func(i, j int) bool {
		return sum.ByDay[i].Date.Before(sum.ByDay[j].Date)
	})

	for _, fault := range sum.Faults {
		sum.SkippedSetIDs = append(sum.SkippedSetIDs, fault.SetID)
	}
	return sum
}
