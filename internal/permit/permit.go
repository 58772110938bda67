// Package permit models CEC permit applications and loads the upstream
// dataset. Records arrive with UTM grid coordinates; a geographic position is
// derived once at load time and memoized on the record. Records whose grid
// coordinates cannot be parsed keep their place in listings but are excluded
// from every spatial operation.
package permit

import (
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/ema-gis/cecmap/internal/projection"
)

// Record is one environmental-permit application.
type Record struct {
	Reference         string   `json:"reference"`
	Year              int      `json:"year"`
	Applicant         string   `json:"applicant"`
	Activity          string   `json:"activity"`
	Location          string   `json:"location"`
	Easting           *float64 `json:"easting,omitempty"`
	Northing          *float64 `json:"northing,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Status            string   `json:"status"`
	DeterminationDate string   `json:"determination_date"`
}

// HasPosition reports whether a geographic position was derived at load.
func (r *Record) HasPosition() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Point returns the derived position. Only valid when HasPosition is true.
func (r *Record) Point() orb.Point {
	return orb.Point{*r.Longitude, *r.Latitude}
}

// derivePosition computes and memoizes lat/lon from the grid coordinates.
// Missing or unparsable coordinates leave the position absent.
func (r *Record) derivePosition() {
	if r.Easting == nil || r.Northing == nil {
		return
	}
	lat, lon, err := projection.ToLatLon(*r.Easting, *r.Northing)
	if err != nil {
		return
	}
	r.Latitude = &lat
	r.Longitude = &lon
}

// Filter selects records from a dataset. Zero values mean "no constraint".
type Filter struct {
	YearStart int    `json:"year_start,omitempty"`
	YearEnd   int    `json:"year_end,omitempty"`
	Status    string `json:"status,omitempty"`
	Query     string `json:"query,omitempty"`
}

// Apply returns the records matching the filter, preserving dataset order.
// Records without a derived position are listed like any other; spatial
// exclusion happens in the spatial package, not here.
func (f Filter) Apply(records []Record) []Record {
	out := []Record{}
	for _, r := range records {
		if f.YearStart != 0 && r.Year < f.YearStart {
			continue
		}
		if f.YearEnd != 0 && r.Year > f.YearEnd {
			continue
		}
		if f.Status != "" && !strings.EqualFold(r.Status, f.Status) {
			continue
		}
		if f.Query != "" && !matchesQuery(&r, f.Query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesQuery(r *Record, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	for _, field := range []string{r.Reference, r.Applicant, r.Activity, r.Location} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// FindByReference locates a record by its CEC reference. A bare number
// matches the numeric part of the reference ("CEC-1234" matches "1234"),
// mirroring how officers search the register.
func FindByReference(records []Record, ref string) (Record, bool) {
	ref = strings.TrimSpace(ref)
	for _, r := range records {
		if strings.EqualFold(r.Reference, ref) {
			return r, true
		}
	}
	if num, ok := referenceNumber(ref); ok {
		for _, r := range records {
			if n, ok := referenceNumber(r.Reference); ok && n == num {
				return r, true
			}
		}
	}
	return Record{}, false
}

func referenceNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToUpper(s), "CEC")
	s = strings.TrimLeft(s, " -")
	digits := strings.Builder{}
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		digits.WriteRune(c)
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

// Years returns the sorted distinct years present in the dataset, for filter
// controls.
func Years(records []Record) []int {
	seen := map[int]bool{}
	var out []int
	for _, r := range records {
		if r.Year != 0 && !seen[r.Year] {
			seen[r.Year] = true
			out = append(out, r.Year)
		}
	}
	sort.Ints(out)
	return out
}

// Statuses returns the sorted distinct determination statuses, for filter
// controls. The status vocabulary is open; whatever the dataset carries is
// offered verbatim.
func Statuses(records []Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		s := strings.TrimSpace(r.Status)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
