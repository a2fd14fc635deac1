// Package pricing implements multi-leg option strategy pricing: parsing
// free-form leg strings from chat, fetching per-instrument marks, and
// rendering the combo report.
package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Side is the direction of a strategy leg.
type Side string

// Leg directions.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Leg is one parsed strategy leg. Instrument is a full Deribit name
// (CURRENCY-EXPIRY-STRIKE-TYPE) and Quantity is always positive; the
// direction lives in Side.
type Leg struct {
	Instrument string
	Side       Side
	Quantity   int
}

// StrategyRequest is a validated multi-leg strategy: legs in input order,
// all sharing one underlying currency.
type StrategyRequest struct {
	Legs     []Leg
	Currency string
}

// Parse rejection reasons. These are diagnostics for the log; the chat
// reply for any of them is the invalid-leg-format message.
var (
	ErrInputTooShort     = errors.New("input is too short")
	ErrInvalidInstrument = errors.New("invalid instrument format")
	ErrMissingSign       = errors.New("quantity must start with '+' or '-'")
	ErrInvalidQuantity   = errors.New("quantity must be a valid positive integer")
)

// Currencies recognized as instrument prefixes. Anything else gets the
// BTC- default prepended.
var knownCurrencyPrefixes = []string{"BTC-", "ETH-", "USDC-"}

// Parser turns free-form leg strings into Legs. Parsing is heuristic and
// order matters: tokenize, join, fix a missing sign, default the
// currency, expand abbreviated BTC strikes, then validate the quantity.
type Parser struct {
	logger *logrus.Logger
}

// NewParser creates a parser. A nil logger falls back to the standard one.
func NewParser(logger *logrus.Logger) *Parser {
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{logger: logger}
}

// ParseLeg parses a single leg string such as "+1 BTC-26SEP25-95000-P".
// Tolerated variants: spaced instruments ("+1 BTC 26SEP25 95000 P"),
// a missing currency (BTC assumed), an abbreviated BTC strike ("95" for
// 95000), and a missing sign when the rest clearly is a contract name.
func (p *Parser) ParseLeg(s string) (Leg, error) {
	parts := strings.Fields(strings.ToUpper(strings.TrimSpace(s)))
	if len(parts) < 2 {
		return Leg{}, ErrInputTooShort
	}

	qtyStr := parts[0]
	instrumentParts := parts[1:]

	// Instrument token shapes: "BTC-26SEP25-130000-C" as one token,
	// "BTC 26SEP25 130000 C" spaced out, or spaced out without the
	// currency. Anything else is unrecognizable.
	var instrument string
	switch len(instrumentParts) {
	case 1:
		instrument = instrumentParts[0]
	case 4:
		instrument = strings.Join(instrumentParts, "-")
	case 3:
		instrument = strings.Join(instrumentParts, "-")
	default:
		return Leg{}, ErrInvalidInstrument
	}

	// A bare "1" instead of "+1" is accepted only when the instrument
	// side of the input already looks like a contract name.
	if !strings.HasPrefix(qtyStr, "+") && !strings.HasPrefix(qtyStr, "-") {
		if allDigits(qtyStr) && strings.Count(instrument, "-") >= 2 {
			p.logger.WithField("quantity", qtyStr).Warn("quantity missing sign, assuming a buy")
			qtyStr = "+" + qtyStr
		} else {
			return Leg{}, ErrMissingSign
		}
	}

	if !hasKnownCurrency(instrument) {
		instrument = "BTC-" + instrument
	}

	instrument = expandAbbreviatedStrike(instrument)

	side := SideSell
	if strings.HasPrefix(qtyStr, "+") {
		side = SideBuy
	}
	quantity, err := strconv.Atoi(qtyStr[1:])
	if err != nil || quantity <= 0 {
		return Leg{}, ErrInvalidQuantity
	}

	return Leg{Instrument: instrument, Side: side, Quantity: quantity}, nil
}

// ParseStrategy parses every leg in order and enforces that all legs
// share one underlying currency. The first bad leg aborts the whole
// request; the returned error texts are what the user should read.
func (p *Parser) ParseStrategy(inputs []string) (StrategyRequest, error) {
	legs := make([]Leg, 0, len(inputs))
	for _, input := range inputs {
		leg, err := p.ParseLeg(input)
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"leg":    input,
				"reason": err.Error(),
			}).Error("aborting strategy, invalid leg")
			return StrategyRequest{}, fmt.Errorf("Error: Invalid leg format: '%s'", input)
		}
		legs = append(legs, leg)
	}

	if len(legs) == 0 {
		return StrategyRequest{}, errors.New("Error: No valid strategy legs provided.")
	}

	// Mixed-currency strategies have no single meaningful net price, so
	// reject before any quote is fetched.
	currency := underlying(legs[0].Instrument)
	for _, leg := range legs[1:] {
		if cur := underlying(leg.Instrument); cur != currency {
			return StrategyRequest{}, fmt.Errorf(
				"Error: All legs must have the same underlying currency. Found '%s' and '%s'.", currency, cur)
		}
	}

	return StrategyRequest{Legs: legs, Currency: currency}, nil
}

// underlying extracts the currency prefix, e.g. "BTC" from
// "BTC-26SEP25-95000-P".
func underlying(instrument string) string {
	prefix, _, _ := strings.Cut(instrument, "-")
	return prefix
}

func hasKnownCurrency(instrument string) bool {
	for _, prefix := range knownCurrencyPrefixes {
		if strings.HasPrefix(instrument, prefix) {
			return true
		}
	}
	return false
}

// expandAbbreviatedStrike appends "000" to BTC strikes of up to three
// digits, so "BTC-26SEP25-95-P" prices as the 95000 strike. Other
// currencies and malformed names pass through untouched.
func expandAbbreviatedStrike(instrument string) string {
	if !strings.HasPrefix(instrument, "BTC-") {
		return instrument
	}
	parts := strings.Split(instrument, "-")
	if len(parts) != 4 {
		return instrument
	}
	strike := parts[2]
	if allDigits(strike) && len(strike) <= 3 {
		parts[2] = strike + "000"
		return strings.Join(parts, "-")
	}
	return instrument
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
