package screening

import (
	"math"

	"github.com/ema-gis/cecmap/internal/catalog"
)

// Threshold is the composite score at or above which a full EIA screening
// is required. It is compared against the raw 0..1 composite.
const Threshold = 0.75

const (
	DecisionRequired    = "EIA SOP Is Required"
	DecisionNotRequired = "EIA SOP Is Not Required"
)

const (
	narrativeRequired = "Information provided by applicant is believed to be insufficient and/or " +
		"indicates high likelihood of significant impact to human health and environment. " +
		"A more thorough screening is required to determine the extent of risk and/or " +
		"appropriate mitigation measures."
	narrativeNotRequired = "Information provided by applicant is believed to be complete and/or " +
		"sufficient to assess environmental impact and determine mitigation measures without " +
		"the need for an EIA. Low acute and cumulative risks to human health and the " +
		"environment have been determined with acceptable confidence. Considerations beyond " +
		"the scope of this model must be taken into account to justify contrary action."
)

// ActivityScore is one activity's weighted sub-score.
type ActivityScore struct {
	Code     string  `json:"code"`
	SubScore float64 `json:"sub_score"`
}

// Score is the NSL screening result.
type Score struct {
	Composite  float64         `json:"composite"`
	Percent    float64         `json:"percent"`
	Decision   string          `json:"decision"`
	Narrative  string          `json:"narrative"`
	Activities []ActivityScore `json:"activities"`
}

// ComputeScore evaluates the NSL model over the rated activities. Each
// activity contributes sum(weight*coefficient)/sum(weight); the composite is
// the unweighted mean of the contributions. Activities without a weight row
// in the catalog are skipped. No rated activities scores zero.
func ComputeScore(ratings map[string]RiskRating, cat *catalog.Catalog) Score {
	var (
		total float64
		subs  []ActivityScore
	)

	for _, code := range sortedCodes(ratings) {
		act, ok := cat.Lookup(code)
		if !ok || act.Weights == nil {
			continue
		}
		w := *act.Weights
		denom := w.Sum()
		if denom <= 0 {
			continue
		}

		r := ratings[code]
		num := w.Nature*r.Nature.Coefficient() +
			w.Scale*r.Scale.Coefficient() +
			w.Location*r.Location.Coefficient()

		sub := num / denom
		total += sub
		subs = append(subs, ActivityScore{Code: code, SubScore: sub})
	}

	var composite float64
	if len(subs) > 0 {
		composite = total / float64(len(subs))
	}

	decision, narrative := DecisionNotRequired, narrativeNotRequired
	if composite >= Threshold {
		decision, narrative = DecisionRequired, narrativeRequired
	}

	return Score{
		Composite:  composite,
		Percent:    math.Round(composite*10000) / 100,
		Decision:   decision,
		Narrative:  narrative,
		Activities: subs,
	}
}

func sortedCodes(ratings map[string]RiskRating) []string {
	codes := make([]string, 0, len(ratings))
	for code := range ratings {
		codes = append(codes, code)
	}
	return catalog.SortCodes(codes)
}
