package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/twei55/otcbot/internal/marketdata"
)

// indexPrinter renders the index reference with thousands separators,
// e.g. $104,001.
var indexPrinter = message.NewPrinter(language.English)

// Pricer computes the net mark price of a multi-leg strategy. It is
// stateless across calls and safe for concurrent use.
type Pricer struct {
	parser   *Parser
	provider marketdata.QuoteProvider
	logger   *logrus.Logger
}

// NewPricer creates a pricer on top of a quote provider.
func NewPricer(provider marketdata.QuoteProvider, logger *logrus.Logger) *Pricer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pricer{
		parser:   NewParser(logger),
		provider: provider,
		logger:   logger,
	}
}

// Price parses the leg strings, fetches one quote per leg concurrently,
// and renders the combo report. Validation failures come back as an
// error whose text is the chat reply; fetch failures do not fail the
// call, they show up inside the report instead.
func (p *Pricer) Price(ctx context.Context, legInputs []string) (string, error) {
	request, err := p.parser.ParseStrategy(legInputs)
	if err != nil {
		return "", err
	}

	requestID := uuid.New().String()
	log := p.logger.WithFields(logrus.Fields{
		"request_id": shortID(requestID),
		"legs":       len(request.Legs),
		"currency":   request.Currency,
	})
	log.Info("pricing strategy")

	quotes := p.fetchQuotes(ctx, request.Legs)

	// Later duplicates overwrite earlier ones; every leg of the same
	// instrument then prices off that last fetch.
	priceMap := make(map[string]*float64, len(quotes))
	var indexPrice *float64
	for i, quote := range quotes {
		priceMap[quote.Instrument] = quote.MarkPrice
		// The index reference comes from the first leg's result only.
		if i == 0 && quote.IndexPrice != nil {
			indexPrice = quote.IndexPrice
		}
	}

	var total float64
	details := make([]string, 0, len(request.Legs))
	allFetched := true
	for _, leg := range request.Legs {
		mark := priceMap[leg.Instrument]
		if mark == nil {
			allFetched = false
			details = append(details, fmt.Sprintf(" %-4s %dx %-22s: ERROR (Price not found)",
				strings.ToUpper(string(leg.Side)), leg.Quantity, leg.Instrument))
			continue
		}
		legPrice := *mark * float64(leg.Quantity)
		if leg.Side == SideSell {
			legPrice = -legPrice
		}
		total += legPrice
		details = append(details, fmt.Sprintf(" %-4s %dx %-22s: %.4f",
			strings.ToUpper(string(leg.Side)), leg.Quantity, leg.Instrument, *mark))
	}

	if !allFetched {
		log.Warn("strategy priced with missing legs")
	} else {
		log.WithField("net", fmt.Sprintf("%.4f", total)).Info("strategy priced")
	}

	return renderReport(details, total, request.Currency, indexPrice, allFetched), nil
}

// fetchQuotes runs one ticker request per leg and joins all results.
// Duplicate instruments are fetched independently; a failed leg yields a
// markless quote rather than canceling the rest.
func (p *Pricer) fetchQuotes(ctx context.Context, legs []Leg) []marketdata.Quote {
	quotes := make([]marketdata.Quote, len(legs))
	var wg sync.WaitGroup
	for i, leg := range legs {
		wg.Add(1)
		go func(i int, instrument string) {
			defer wg.Done()
			quotes[i] = p.provider.Ticker(ctx, instrument)
		}(i, leg.Instrument)
	}
	wg.Wait()
	return quotes
}

// renderReport assembles the fixed-width combo report. The report is
// always complete: failed legs appear as ERROR lines and suppress the
// net figure, never the output.
func renderReport(details []string, total float64, currency string, indexPrice *float64, allFetched bool) string {
	lines := make([]string, 0, len(details)+3)
	lines = append(lines, "Combo Mark Price per unit\n")
	lines = append(lines, details...)
	lines = append(lines, "\n"+strings.Repeat("-", 40))

	if allFetched {
		indexStr := "N/A"
		if indexPrice != nil {
			indexStr = indexPrinter.Sprintf("%.0f", *indexPrice)
		}
		lines = append(lines, fmt.Sprintf("  Net Combo Mark: %.4f %s\n  Index Ref: $%s", total, currency, indexStr))
	} else {
		lines = append(lines, "  Net Combo Mark: N/A (Could not fetch price for all legs)")
	}
	return strings.Join(lines, "\n")
}

// shortID trims a request ID for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
