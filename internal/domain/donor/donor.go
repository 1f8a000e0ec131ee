// Package donor defines the local donor roster model.
//
// A Record is one row of the roster. Its identity for reconciliation is the
// pair (DisplayName, Email), compared with strict case-sensitive equality —
// no trimming beyond the joining space, no case folding. Two records with the
// same display name but different emails are different donors.
package donor

import (
	"strconv"
	"strings"
	"time"
)

// Record represents one donor from the roster.
type Record struct {
	FirstName       string
	MiddleInsert    string // unused in matching
	LastName        string
	Email           string
	IBAN            string
	DonationAmount  float64
	AuthorizedSince *time.Time
}

// DisplayName joins first and last name with a single space.
// If either part is empty the result collapses to the other part.
func (r Record) DisplayName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// FormatAmount renders an amount with exactly two fraction digits,
// as required on the wire (12 -> "12.00", 7.5 -> "7.50").
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
