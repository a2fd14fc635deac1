package config

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// The operator data lives in single-column CSV files exported from a
// spreadsheet. IDs arrive as plain digit strings; anything else on a row
// (spreadsheet artifacts, stray notes) is skipped with a warning rather
// than failing the whole load.

// ReadIDList reads Telegram IDs from the first column of a CSV file,
// skipping the header row. Malformed rows are logged and dropped.
func ReadIDList(path string, logger *logrus.Logger) ([]int64, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator's config file
	if err != nil {
		return nil, fmt.Errorf("opening id list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var ids []int64
	line := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		line++
		if line == 1 {
			// Header row
			continue
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"file": path,
				"line": line,
				"row":  row[0],
			}).Warn("skipping invalid ID")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReadToken reads the bot token from the first cell of a CSV file.
func ReadToken(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator's config file
	if err != nil {
		return "", fmt.Errorf("opening token file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	row, err := r.Read()
	if err != nil || len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return "", fmt.Errorf("token file %s is empty or improperly formatted", path)
	}
	return strings.TrimSpace(row[0]), nil
}

// TwilioCredentials holds the voice-call account settings loaded from a
// 3-row CSV: account SID, auth token, from number.
type TwilioCredentials struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// ReadTwilioCredentials loads Twilio credentials from a CSV file.
func ReadTwilioCredentials(path string) (*TwilioCredentials, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator's config file
	if err != nil {
		return nil, fmt.Errorf("opening twilio credentials: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	fields := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		row, err := r.Read()
		if err != nil {
			return nil, fmt.Errorf("twilio credentials file %s needs 3 rows (SID, token, number): %w", path, err)
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			return nil, fmt.Errorf("twilio credentials file %s has an empty row %d", path, i+1)
		}
		fields = append(fields, strings.TrimSpace(row[0]))
	}
	return &TwilioCredentials{
		AccountSID: fields[0],
		AuthToken:  fields[1],
		FromNumber: fields[2],
	}, nil
}

// ReadPhoneNumbers loads recipient phone numbers from the first column of
// a headerless CSV file. A missing file is not an error: the call channel
// simply has nobody to ring.
func ReadPhoneNumbers(path string, logger *logrus.Logger) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator's config file
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField("file", path).Warn("call list not found; no recipient numbers loaded")
			return nil, nil
		}
		return nil, fmt.Errorf("opening call list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var numbers []string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(row) > 0 && strings.TrimSpace(row[0]) != "" {
			numbers = append(numbers, strings.TrimSpace(row[0]))
		}
	}
	return numbers, nil
}
