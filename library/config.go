package library

import (
	"os"
	"strconv"
)

// Options carries the tunable behavior of the catalog.
type Options struct {
	DBPath     string  // SQLite database file path
	LoanDays   int     // loan period used to derive due dates
	FinePerDay float64 // fine per whole day late, in currency units

	// StrictCopyEdit rejects book edits that would cut the total copy count
	// below the number of currently issued loans. Off by default: the default
	// behavior clamps availability at zero instead.
	StrictCopyEdit bool
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		DBPath:     "library.db",
		LoanDays:   14,
		FinePerDay: 1.0,
	}
}

// OptionsFromEnv reads configuration from environment variables with sensible
// defaults: LIBRARY_DB, LIBRARY_LOAN_DAYS, LIBRARY_FINE_PER_DAY, LIBRARY_STRICT_EDIT.
func OptionsFromEnv() Options {
	o := DefaultOptions()
	o.DBPath = getEnv("LIBRARY_DB", o.DBPath)
	if v, err := strconv.Atoi(getEnv("LIBRARY_LOAN_DAYS", "")); err == nil && v > 0 {
		o.LoanDays = v
	}
	if v, err := strconv.ParseFloat(getEnv("LIBRARY_FINE_PER_DAY", ""), 64); err == nil && v >= 0 {
		o.FinePerDay = v
	}
	if getEnv("LIBRARY_STRICT_EDIT", "") == "1" {
		o.StrictCopyEdit = true
	}
	return o
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
