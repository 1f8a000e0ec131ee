// Package matcher decides whether a remote customer corresponds to a local
// donor record.
//
// Matching is deliberately strict:
//   - display name must be byte-equal to the remote customer name
//   - email must be byte-equal to the remote customer email
//
// Absent values on either side are treated as the empty string before
// comparison, so a record without an email matches a remote customer whose
// email field is empty. There is no trimming or case folding; a roster that
// needs that must normalize before matching.
package matcher

import (
	"github.com/mkuiper/donorsync/internal/adapters/mollie"
	"github.com/mkuiper/donorsync/internal/domain/donor"
)

// Matches reports whether the remote customer corresponds to the record.
func Matches(rec donor.Record, c mollie.Customer) bool {
	return rec.DisplayName() == c.Name && rec.Email == c.Email
}
