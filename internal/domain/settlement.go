package domain

import "github.com/shopspring/decimal"

// PotentialProfit calcula el profit de cada pata suponiendo que gana y la otra
// pierde:
//
//	potentialA = sA*oA - sA - sB
//	potentialB = sB*oB - sB - sA
//
// Aritmética decimal exacta, sin redondeo. No valida: asume stake > 0 y odd >= 1.
func PotentialProfit(a, b BetLeg) (potentialA, potentialB decimal.Decimal) {
	potentialA = a.Stake.Mul(a.Odd).Sub(a.Stake).Sub(b.Stake)
	potentialB = b.Stake.Mul(b.Odd).Sub(b.Stake).Sub(a.Stake)
	return potentialA, potentialB
}

// Settle devuelve el actualProfit del par según la tabla de casos
// (outcomeA, outcomeB). ok es false mientras alguna pata siga pendiente.
//
//	won      lost      sA*oA - sA - sB
//	won      returned  sA*oA - sA + sB
//	lost     returned  -sA + sB
//	won      won       (sA*oA + sB*oB) - (sA + sB)
//	lost     lost      -(sA + sB)
//	returned returned  0
//
// Las filas simétricas se obtienen intercambiando A y B.
func Settle(a, b BetLeg) (profit decimal.Decimal, ok bool) {
	if !a.Outcome.IsSet() || !b.Outcome.IsSet() {
		return decimal.Zero, false
	}
	sA, oA := a.Stake, a.Odd
	sB, oB := b.Stake, b.Odd

	switch [2]Outcome{a.Outcome, b.Outcome} {
	case [2]Outcome{OutcomeWon, OutcomeLost}:
		return sA.Mul(oA).Sub(sA).Sub(sB), true
	case [2]Outcome{OutcomeLost, OutcomeWon}:
		return sB.Mul(oB).Sub(sB).Sub(sA), true
	case [2]Outcome{OutcomeWon, OutcomeReturned}:
		return sA.Mul(oA).Sub(sA).Add(sB), true
	case [2]Outcome{OutcomeReturned, OutcomeWon}:
		return sB.Mul(oB).Sub(sB).Add(sA), true
	case [2]Outcome{OutcomeLost, OutcomeReturned}:
		return sA.Neg().Add(sB), true
	case [2]Outcome{OutcomeReturned, OutcomeLost}:
		return sB.Neg().Add(sA), true
	case [2]Outcome{OutcomeWon, OutcomeWon}:
		return sA.Mul(oA).Add(sB.Mul(oB)).Sub(sA.Add(sB)), true
	case [2]Outcome{OutcomeLost, OutcomeLost}:
		return sA.Add(sB).Neg(), true
	case [2]Outcome{OutcomeReturned, OutcomeReturned}:
		return decimal.Zero, true
	}
	return decimal.Zero, false
}

// Preview runs both pure functions over a pair of legs without touching any
// state. Clients use it to show exactly what the server will persist.
type Preview struct {
	PotentialProfit [2]decimal.Decimal  `json:"potential_profit"`
	ActualProfit    decimal.NullDecimal `json:"actual_profit"`
	Status          SetStatus           `json:"status"`
}

// PreviewInput is one leg as sent by a client for a preview.
type PreviewInput struct {
	Stake   decimal.Decimal `json:"stake"`
	Odd     decimal.Decimal `json:"odd"`
	Outcome string          `json:"outcome,omitempty"`
}

// NewPreview validates the legs and evaluates them.
func NewPreview(legs [2]PreviewInput) (Preview, error) {
	var pair [2]BetLeg
	for i, in := range legs {
		if err := ValidateStakeOdd(in.Stake, in.Odd); err != nil {
			return Preview{}, withLeg(i, err)
		}
		pair[i] = BetLeg{Position: i, Stake: in.Stake, Odd: in.Odd}
		if in.Outcome != "" {
			o, err := ParseOutcome(in.Outcome)
			if err != nil {
				return Preview{}, withLeg(i, err)
			}
			pair[i].Outcome = o
		}
	}

	var p Preview
	p.PotentialProfit[0], p.PotentialProfit[1] = PotentialProfit(pair[0], pair[1])
	p.Status = StatusPending
	if profit, ok := Settle(pair[0], pair[1]); ok {
		p.ActualProfit = decimal.NewNullDecimal(profit)
		p.Status = StatusResolved
	}
	return p, nil
}
