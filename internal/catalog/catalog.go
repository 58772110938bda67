// Package catalog holds the fixed reference table of designated activities
// under the Certificate of Environmental Clearance rules: activity codes,
// descriptions, NSL importance weights, and per-activity risk-rating guidance.
package catalog

import (
	_ "embed"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

//go:embed data/activities.json
var activitiesJSON []byte

//go:embed data/guidance.json
var guidanceJSON []byte

// Weights is the fixed importance triple for one designated activity.
type Weights struct {
	Nature   float64 `json:"nature"`
	Scale    float64 `json:"scale"`
	Location float64 `json:"location"`
}

// Sum returns the total weight. Activities whose weight sum is zero are
// excluded from scoring.
func (w Weights) Sum() float64 {
	return w.Nature + w.Scale + w.Location
}

// Activity is one designated activity class. Weights is nil for codes the
// upstream weight table does not cover; such activities never contribute to
// the composite score.
type Activity struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Weights     *Weights `json:"weights,omitempty"`
}

// Guidance is the free-text rating guidance for one activity code.
type Guidance struct {
	Nature   string `json:"nature"`
	Scale    string `json:"scale"`
	Location string `json:"location"`
}

// Catalog is the loaded, immutable activity reference table.
type Catalog struct {
	activities []Activity
	byCode     map[string]int
	guidance   map[string]Guidance
}

type rawActivity struct {
	Code           string   `json:"code"`
	Description    string   `json:"description"`
	NatureWeight   *float64 `json:"nature_weight"`
	ScaleWeight    *float64 `json:"scale_weight"`
	LocationWeight *float64 `json:"location_weight"`
}

// New parses the embedded reference data. Every guidance entry must refer to
// a known activity code; a mismatch means the assets are out of sync.
func New() (*Catalog, error) {
	var raw []rawActivity
	if err := json.Unmarshal(activitiesJSON, &raw); err != nil {
		return nil, eris.Wrap(err, "catalog: parse activities")
	}

	var guidance map[string]Guidance
	if err := json.Unmarshal(guidanceJSON, &guidance); err != nil {
		return nil, eris.Wrap(err, "catalog: parse guidance")
	}

	c := &Catalog{
		activities: make([]Activity, 0, len(raw)),
		byCode:     make(map[string]int, len(raw)),
		guidance:   guidance,
	}
	for _, r := range raw {
		act := Activity{Code: r.Code, Description: r.Description}
		if r.NatureWeight != nil && r.ScaleWeight != nil && r.LocationWeight != nil {
			act.Weights = &Weights{
				Nature:   *r.NatureWeight,
				Scale:    *r.ScaleWeight,
				Location: *r.LocationWeight,
			}
		}
		if _, dup := c.byCode[act.Code]; dup {
			return nil, eris.Errorf("catalog: duplicate activity code %q", act.Code)
		}
		c.byCode[act.Code] = len(c.activities)
		c.activities = append(c.activities, act)
	}

	for code := range guidance {
		if _, ok := c.byCode[code]; !ok {
			return nil, eris.Errorf("catalog: guidance for unknown activity code %q", code)
		}
	}

	return c, nil
}

// All returns the activities in catalog order.
func (c *Catalog) All() []Activity {
	out := make([]Activity, len(c.activities))
	copy(out, c.activities)
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int { return len(c.activities) }

// Lookup returns the activity for a code, or false if the code is not in the
// catalog. Callers treat an unknown code as a data-quality anomaly.
func (c *Catalog) Lookup(code string) (Activity, bool) {
	i, ok := c.byCode[code]
	if !ok {
		return Activity{}, false
	}
	return c.activities[i], true
}

// GuidanceFor returns the rating guidance for a code.
func (c *Catalog) GuidanceFor(code string) (Guidance, bool) {
	g, ok := c.guidance[code]
	return g, ok
}

var codePattern = regexp.MustCompile(`^(\d+)(?:\(([a-z])\))?$`)

// SortKey maps an activity code to its presentation order: leading integer
// first, then the optional parenthesized letter, unsuffixed codes before any
// lettered suffix of the same number. Unparsable codes sort last.
func SortKey(code string) int {
	m := codePattern.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return 1 << 30
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1 << 30
	}
	key := n * 100
	if m[2] != "" {
		key += int(m[2][0]-'a') + 1
	}
	return key
}

// SortCodes orders activity codes by SortKey in place and returns the slice.
func SortCodes(codes []string) []string {
	sort.SliceStable(codes, func(i, j int) bool {
		return SortKey(codes[i]) < SortKey(codes[j])
	})
	return codes
}
