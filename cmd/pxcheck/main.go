// pxcheck prices a multi-leg options strategy from the command line,
// one leg per argument (or per stdin line when no arguments are given).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/twei55/otcbot/internal/marketdata"
	"github.com/twei55/otcbot/internal/pricing"
)

func main() {
	var (
		baseURL = flag.String("base", marketdata.DefaultBaseURL, "Deribit API base URL")
		verbose = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	legs := flag.Args()
	if len(legs) == 0 {
		legs = readLines(os.Stdin)
	}
	if len(legs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pxcheck [-base URL] [-v] LEG [LEG...]")
		fmt.Fprintln(os.Stderr, `  leg format: "+1 BTC-26SEP25-95000-P" (legs also read from stdin, one per line)`)
		os.Exit(2)
	}

	client := marketdata.NewDeribitClientWithBaseURL(*baseURL, logger)
	pricer := pricing.NewPricer(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := pricer.Price(ctx, legs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Println(report)
}

func readLines(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
