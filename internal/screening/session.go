// Package screening implements the NSL screening workflow: activity
// selection, per-activity risk ratings, the weighted composite score, and
// the regulatory decision it yields.
package screening

import (
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/ema-gis/cecmap/internal/catalog"
)

// Session holds one screening in progress. All methods are safe for
// concurrent use; HTTP handlers share a session.
type Session struct {
	mu sync.Mutex

	projectTitle string
	cecNumber    string
	geometry     orb.Geometry

	selected map[string]struct{}
	ratings  map[string]RiskRating

	assessmentStarted bool
	outputGenerated   bool
}

// NewSession returns an empty session with both workflow gates closed.
func NewSession() *Session {
	return &Session{
		selected: make(map[string]struct{}),
		ratings:  make(map[string]RiskRating),
	}
}

// SetProject records the project title and CEC reference shown on the model
// output.
func (s *Session) SetProject(title, cecNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectTitle = title
	s.cecNumber = cecNumber
}

// SetGeometry attaches the proposed site geometry. Passing nil clears it;
// spatial analysis is simply skipped without one.
func (s *Session) SetGeometry(g orb.Geometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geometry = g
}

// Geometry returns the attached site geometry, or nil.
func (s *Session) Geometry() orb.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geometry
}

// Toggle flips the selection state of an activity code. Selecting starts the
// activity at all-N/A; deselecting discards its ratings entry entirely.
// Either change invalidates a previously generated output.
func (s *Session) Toggle(code string, cat *catalog.Catalog) (selected bool, err error) {
	if _, ok := cat.Lookup(code); !ok {
		return false, eris.Errorf("screening: unknown activity code %q", code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, on := s.selected[code]
	if on {
		delete(s.selected, code)
		delete(s.ratings, code)
	} else {
		s.selected[code] = struct{}{}
		s.ratings[code] = Unrated()
	}
	s.outputGenerated = false
	return !on, nil
}

// Selected returns the chosen activity codes in catalog order.
func (s *Session) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.selected))
	for code := range s.selected {
		codes = append(codes, code)
	}
	return catalog.SortCodes(codes)
}

// BeginAssessment opens the risk-assessment gate. It fails when no activity
// is selected.
func (s *Session) BeginAssessment() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == 0 {
		return eris.New("screening: no designated activities selected")
	}
	s.assessmentStarted = true
	return nil
}

// SetRatings stores the per-activity ratings captured from the assessment
// form. Every code must be selected and every rating on the six-point scale.
func (s *Session) SetRatings(ratings map[string]RiskRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.assessmentStarted {
		return eris.New("screening: risk assessment has not been started")
	}
	for code, r := range ratings {
		if _, on := s.selected[code]; !on {
			return eris.Errorf("screening: activity %q is not selected", code)
		}
		for _, level := range []Rating{r.Nature, r.Scale, r.Location} {
			if !level.Valid() {
				return eris.Errorf("screening: invalid rating %q for activity %q", level, code)
			}
		}
	}
	for code, r := range ratings {
		s.ratings[code] = r
	}
	return nil
}

// Ratings returns a copy of the stored ratings.
func (s *Session) Ratings() map[string]RiskRating {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]RiskRating, len(s.ratings))
	for code, r := range s.ratings {
		out[code] = r
	}
	return out
}

// AssessmentStarted reports the risk-assessment gate.
func (s *Session) AssessmentStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessmentStarted
}

// OutputGenerated reports whether a model output has been produced since the
// last mutation.
func (s *Session) OutputGenerated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputGenerated
}

// GenerateOutput computes the score and assembles the model output document,
// opening the output gate. The assessment gate must already be open.
func (s *Session) GenerateOutput(cat *catalog.Catalog, now time.Time) (*Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.assessmentStarted {
		return nil, eris.New("screening: risk assessment has not been started")
	}

	score := ComputeScore(s.ratings, cat)

	codes := make([]string, 0, len(s.selected))
	for code := range s.selected {
		codes = append(codes, code)
	}

	out := &Output{
		ProjectTitle: s.projectTitle,
		CECNumber:    s.cecNumber,
		Date:         formatOutputDate(now),
		Activities:   catalog.SortCodes(codes),
		Score:        score,
	}
	s.outputGenerated = true
	return out, nil
}

// Reset clears the session back to its initial state and closes both gates.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectTitle = ""
	s.cecNumber = ""
	s.geometry = nil
	s.selected = make(map[string]struct{})
	s.ratings = make(map[string]RiskRating)
	s.assessmentStarted = false
	s.outputGenerated = false
}

// Snapshot is the serializable state of a session, persisted by the store.
type Snapshot struct {
	ProjectTitle      string                `json:"project_title"`
	CECNumber         string                `json:"cec_number"`
	Selected          []string              `json:"selected"`
	Ratings           map[string]RiskRating `json:"ratings"`
	AssessmentStarted bool                  `json:"assessment_started"`
	OutputGenerated   bool                  `json:"output_generated"`
}

// Snapshot captures the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]string, 0, len(s.selected))
	for code := range s.selected {
		codes = append(codes, code)
	}
	ratings := make(map[string]RiskRating, len(s.ratings))
	for code, r := range s.ratings {
		ratings[code] = r
	}
	return Snapshot{
		ProjectTitle:      s.projectTitle,
		CECNumber:         s.cecNumber,
		Selected:          catalog.SortCodes(codes),
		Ratings:           ratings,
		AssessmentStarted: s.assessmentStarted,
		OutputGenerated:   s.outputGenerated,
	}
}

// Restore replaces the session state with a snapshot.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projectTitle = snap.ProjectTitle
	s.cecNumber = snap.CECNumber
	s.selected = make(map[string]struct{}, len(snap.Selected))
	for _, code := range snap.Selected {
		s.selected[code] = struct{}{}
	}
	s.ratings = make(map[string]RiskRating, len(snap.Ratings))
	for code, r := range snap.Ratings {
		s.ratings[code] = r
	}
	s.assessmentStarted = snap.AssessmentStarted
	s.outputGenerated = snap.OutputGenerated
}
