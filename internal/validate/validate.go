// Package validate runs the post-extraction data-quality pass and computes
// date statistics.
//
// Nothing here blocks a run: every finding is a warning on the dataset. The
// generated database triggers repeat the same checks at insert time.
package validate

import (
	"regexp"
	"time"
	"unicode/utf8"

	"tiksql/internal/catalog"
	"tiksql/internal/dataset"
	"tiksql/internal/datefmt"
)

// SampleSize is how many rows per table the date check inspects.
const SampleSize = 100

// ExpectedDateFormat is reported on date_validation warnings.
const ExpectedDateFormat = "YYYY-MM-DD HH:MM:SS or YYYY-MM-DD"

// Username length bounds, inclusive.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 50
)

// Issues reported on data_validation warnings.
const (
	IssueLength = "length_validation"
	IssueFormat = "format_validation"
)

// emailShape mirrors LIKE '%_@_%._%'.
var emailShape = regexp.MustCompile(`(?s)^.+@.+\..+$`)

// Validator checks an extracted dataset against its catalog.
type Validator struct {
	Catalog *catalog.Catalog
	// Now stamps warnings. Defaults to time.Now.
	Now func() time.Time
}

func (v Validator) stamp() string {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	return now().UTC().Format(dataset.TimestampLayout)
}

// Run performs every check and returns the number of warnings added.
func (v Validator) Run(ds *dataset.Dataset) int {
	before := len(ds.Warnings)
	v.Dates(ds)
	v.UserData(ds)
	return len(ds.Warnings) - before
}

// Dates flags non-canonical string values in the date columns of the first
// SampleSize rows of every table except users.
func (v Validator) Dates(ds *dataset.Dataset) {
	for _, table := range ds.TableOrder() {
		if table == catalog.UsersTable {
			continue
		}
		fields := v.Catalog.DateFields(table)
		if len(fields) == 0 {
			continue
		}
		rows := ds.Tables[table]
		n := min(SampleSize, len(rows))
		for i := 0; i < n; i++ {
			for _, f := range fields {
				val, _ := rows[i].Get(f)
				s, ok := val.(string)
				if !ok || s == "" || datefmt.IsCanonical(s) {
					continue
				}
				ds.Warn(dataset.Warning{
					Type:      dataset.WarnDateValidation,
					Table:     table,
					Field:     f,
					Row:       dataset.IntPtr(i),
					Value:     s,
					Expected:  ExpectedDateFormat,
					Timestamp: v.stamp(),
				})
			}
		}
	}
}

// UserData checks the username length and the email shape of the user row.
func (v Validator) UserData(ds *dataset.Dataset) {
	if ds.User == nil {
		return
	}
	if raw, ok := ds.User.Get("username"); ok {
		name, _ := raw.(string)
		if n := utf8.RuneCountInString(name); n < MinUsernameLen || n > MaxUsernameLen {
			ds.Warn(dataset.Warning{
				Type:      dataset.WarnDataValidation,
				Table:     catalog.UsersTable,
				Field:     "username",
				Value:     raw,
				Issue:     IssueLength,
				Message:   "username must be between 3 and 50 characters",
				Timestamp: v.stamp(),
			})
		}
	}
	if raw, ok := ds.User.Get("email"); ok {
		if email, _ := raw.(string); email != "" && !emailShape.MatchString(email) {
			ds.Warn(dataset.Warning{
				Type:      dataset.WarnDataValidation,
				Table:     catalog.UsersTable,
				Field:     "email",
				Value:     email,
				Issue:     IssueFormat,
				Message:   "invalid email format",
				Timestamp: v.stamp(),
			})
		}
	}
}
