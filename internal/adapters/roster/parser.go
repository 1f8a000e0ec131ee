// Package roster reads the donor roster from a delimited file.
//
// Columns are addressed by header name, not position, so column order in the
// export does not matter. A malformed row is skipped with a warning; it never
// aborts the whole file.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mkuiper/donorsync/internal/domain/donor"
)

// Header names as they appear in the roster export.
const (
	colFirstName    = "Voornaam"
	colMiddleInsert = "Tussenvoegsel"
	colLastName     = "Achternaam"
	colEmail        = "Primaire E-Mail"
	colIBAN         = "IBAN"
	colAmount       = "Donatie bedrag"
	colAuthorized   = "Gemachtigd sinds"
)

// Date layouts accepted for the "Gemachtigd sinds" column.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
}

// Parser reads donor records from CSV.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a roster parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseFile reads the roster at path.
func (p *Parser) ParseFile(path string) ([]donor.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads donor records from r. The first row must be the header.
// Rows missing a required field (first name, last name or IBAN) are skipped.
func (p *Parser) Parse(r io.Reader) ([]donor.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colFirstName, colLastName, colIBAN} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("roster header is missing column %q", required)
		}
	}

	var records []donor.Record
	line := 1
	for {
		line++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Warn("skipping unreadable roster row", "line", line, "error", err)
			continue
		}

		rec, err := p.parseRow(index, row)
		if err != nil {
			p.logger.Warn("skipping malformed roster row", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func (p *Parser) parseRow(index map[string]int, row []string) (donor.Record, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := donor.Record{
		FirstName:    field(colFirstName),
		MiddleInsert: field(colMiddleInsert),
		LastName:     field(colLastName),
		Email:        field(colEmail),
		IBAN:         field(colIBAN),
	}

	if rec.FirstName == "" && rec.LastName == "" {
		return donor.Record{}, fmt.Errorf("missing both %q and %q", colFirstName, colLastName)
	}
	if rec.IBAN == "" {
		return donor.Record{}, fmt.Errorf("missing %q", colIBAN)
	}

	if raw := field(colAmount); raw != "" {
		amount, err := parseAmount(raw)
		if err != nil {
			return donor.Record{}, fmt.Errorf("invalid %q: %w", colAmount, err)
		}
		if amount < 0 {
			return donor.Record{}, fmt.Errorf("negative %q: %s", colAmount, raw)
		}
		rec.DonationAmount = amount
	}

	if raw := field(colAuthorized); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			// Optional field: null-fill rather than drop the donor.
			p.logger.Warn("ignoring unparseable authorization date", "value", raw)
		} else {
			rec.AuthorizedSince = &date
		}
	}

	return rec, nil
}

// parseAmount accepts both "12.50" and the Dutch "12,50", with an optional
// euro sign and thousands separators.
func parseAmount(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "€")
	cleaned = strings.TrimSpace(cleaned)

	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	return amount, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q", s)
}
