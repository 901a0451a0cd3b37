package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BetSlipFields son los campos que se pudieron reconocer en el texto de un
// ticket (OCR o PDF). Cualquier campo puede faltar: el formulario los usa
// solo para pre-rellenar una pata.
type BetSlipFields struct {
	Bookmaker string           `json:"bookmaker,omitempty"`
	Event     string           `json:"event,omitempty"`
	Selection string           `json:"selection,omitempty"`
	Stake     *decimal.Decimal `json:"stake,omitempty"`
	Odd       *decimal.Decimal `json:"odd,omitempty"`
	EventDate *time.Time       `json:"event_date,omitempty"`
}

// DefaultBookmakers is the list matched when the caller passes none.
var DefaultBookmakers = []string{
	"bet365", "Betfair", "Pinnacle", "William Hill", "Unibet", "bwin",
	"1xBet", "Betano", "Codere", "Sportium", "Marathonbet", "Betway",
	"888sport", "Bet-at-home", "Betsson", "Winamax", "Betfred",
}

const amount = `([0-9]+(?:[.,][0-9]+)*)`

var (
	stakeRe = regexp.MustCompile(`(?i)(?:stake|importe|apuesta|apostado|wager|einsatz|mise)\s*(?:total)?\s*[:=]?\s*(?:€|eur|\$|usd|£)?\s*` + amount)
	oddRe   = regexp.MustCompile(`(?i)(?:odds?|cuota|quota|cote|kurs)\s*[:=]?\s*` + amount)
	atOddRe = regexp.MustCompile(`@\s*([0-9]+(?:[.,][0-9]{1,3})?)`)
	eventRe = regexp.MustCompile(`(?i)(?:event|evento|partido|match)\s*[:=]\s*(.+)`)
	vsRe    = regexp.MustCompile(`(?i)^\s*(.+?\S)\s+(?:vs\.?|v|-)\s+(\S.*?)\s*$`)
	pickRe  = regexp.MustCompile(`(?i)(?:selection|selecci[oó]n|pick|pron[oó]stico)\s*[:=]\s*(.+)`)
	isoRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	euRe    = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
)

// ExtractBetSlip busca en texto libre los campos de una apuesta. bookmakers
// es la lista de casas conocidas; vacía usa DefaultBookmakers.
func ExtractBetSlip(text string, bookmakers []string) BetSlipFields {
	if len(bookmakers) == 0 {
		bookmakers = DefaultBookmakers
	}
	var f BetSlipFields

	lower := strings.ToLower(text)
	best := -1
	for _, b := range bookmakers {
		if i := strings.Index(lower, strings.ToLower(b)); i >= 0 && (best < 0 || i < best) {
			best = i
			f.Bookmaker = b
		}
	}

	if m := stakeRe.FindStringSubmatch(text); m != nil {
		f.Stake = parseAmount(m[1])
	}
	if m := oddRe.FindStringSubmatch(text); m != nil {
		f.Odd = parseAmount(m[1])
	} else if m := atOddRe.FindStringSubmatch(text); m != nil {
		f.Odd = parseAmount(m[1])
	}

	if m := eventRe.FindStringSubmatch(text); m != nil {
		f.Event = strings.TrimSpace(m[1])
	}
	if m := pickRe.FindStringSubmatch(text); m != nil {
		f.Selection = strings.TrimSpace(m[1])
	}

	// sin etiqueta explícita: primera línea "X vs Y" que no sea la cabecera
	// de la casa ni una fecha
	for _, line := range strings.Split(text, "\n") {
		if f.Event != "" {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" || isoRe.MatchString(line) || euRe.MatchString(line) {
			continue
		}
		if f.Bookmaker != "" && strings.Contains(strings.ToLower(line), strings.ToLower(f.Bookmaker)) {
			continue
		}
		if m := vsRe.FindStringSubmatch(line); m != nil {
			f.Event = m[1] + " vs " + m[2]
		}
	}

	f.EventDate = parseSlipDate(text)
	return f
}

// parseAmount acepta "1.234,56", "1,234.56", "1,85" y "1.85". Una coma sola
// siempre es separador decimal.
func parseAmount(s string) *decimal.Decimal {
	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func parseSlipDate(text string) *time.Time {
	if m := isoRe.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return &t
		}
	}
	if m := euRe.FindStringSubmatch(text); m != nil {
		day, month := m[1], m[2]
		if len(day) == 1 {
			day = "0" + day
		}
		if len(month) == 1 {
			month = "0" + month
		}
		if t, err := time.Parse("02/01/2006", day+"/"+month+"/"+m[3]); err == nil {
			return &t
		}
	}
	return nil
}
