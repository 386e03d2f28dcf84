package tracker

import (
	"fmt"
	"sync"
)

const (
	activeCategoryPrefix  = "ctf-"
	archiveCategoryPrefix = "archive-"
)

// Epoch holds the current year as seen by the bot. Reads are safe from any goroutine and the only
// writer is the Tracker's reconciliation
type Epoch struct {
	mu   sync.RWMutex
	year int
}

// NewEpoch returns a new Epoch starting at year
func NewEpoch(year int) (e *Epoch) {
	e = new(Epoch)
	e.year = year

	return e
}

// Year returns the current year
func (e *Epoch) Year() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.year
}

// Short returns the two-digit form of the current year (2025 is "25")
func (e *Epoch) Short() string {
	return ShortYear(e.Year())
}

// ActiveCategory returns the name of the category holding the current year's event channels
func (e *Epoch) ActiveCategory() string {
	return ActiveCategoryName(e.Year())
}

// ArchiveCategory returns the name of the category holding the current year's archived channels
func (e *Epoch) ArchiveCategory() string {
	return ArchiveCategoryName(e.Year())
}

// set updates the year and returns true if it changed
func (e *Epoch) set(year int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.year == year {
		return false
	}

	e.year = year
	return true
}

// ShortYear returns the two-digit form of year
func ShortYear(year int) string {
	return fmt.Sprintf("%02d", year%100)
}

// ActiveCategoryName returns "ctf-<year>"
func ActiveCategoryName(year int) string {
	return fmt.Sprintf("%s%d", activeCategoryPrefix, year)
}

// ArchiveCategoryName returns "archive-<year>"
func ArchiveCategoryName(year int) string {
	return fmt.Sprintf("%s%d", archiveCategoryPrefix, year)
}
