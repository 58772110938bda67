package permit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestParseRows(t *testing.T) {
	data := []byte(`[
		{
			"CEC Reference": "CEC4321/2019",
			"Year": 2019,
			"Applicant": "Example Quarries Ltd",
			"Designated Activity": "8(a)",
			"Activity Location": "Valencia, Trinidad",
			"Easting": 663254.0,
			"Northing": 1162355.0,
			"Application Determination": "CEC Granted",
			"Determination Date": "2019-06-14"
		},
		{
			"CEC Reference": "CEC0102/2021",
			"Year": "2021",
			"Applicant": "Coastal Works Ltd",
			"Designated Activity": "26(b)",
			"Easting": "not a number",
			"Application Determination": "Pending"
		},
		{}
	]`)

	records, err := ParseRows(data)
	require.NoError(t, err)
	require.Len(t, records, 2, "empty row should be dropped")

	first := records[0]
	assert.Equal(t, "CEC4321/2019", first.Reference)
	assert.Equal(t, 2019, first.Year)
	assert.Equal(t, "Example Quarries Ltd", first.Applicant)
	assert.Equal(t, "8(a)", first.Activity)
	assert.Equal(t, "CEC Granted", first.Status)
	require.True(t, first.HasPosition())
	assert.InDelta(t, 10.51, *first.Latitude, 0.02)
	assert.InDelta(t, -61.51, *first.Longitude, 0.02)

	second := records[1]
	assert.Equal(t, 2021, second.Year, "string year should be coerced")
	assert.Nil(t, second.Easting)
	assert.False(t, second.HasPosition(), "record with bad coordinates kept without position")
}

func TestParseRowsInvalidJSON(t *testing.T) {
	_, err := ParseRows([]byte(`{"not": "an array"}`))
	assert.Error(t, err)
}

func sampleRecords() []Record {
	return []Record{
		{Reference: "CEC0001/2018", Year: 2018, Applicant: "Alpha Ltd", Activity: "8(a)", Location: "Arima", Status: "CEC Granted"},
		{Reference: "CEC0450/2019", Year: 2019, Applicant: "Beta Quarries", Activity: "8(c)", Location: "Valencia", Status: "CEC Granted"},
		{Reference: "CEC0777/2020", Year: 2020, Applicant: "Gamma Energy", Activity: "20", Location: "Point Lisas", Status: "Pending"},
		{Reference: "CEC0900/2020", Year: 2020, Applicant: "Delta Farms", Activity: "3", Location: "Penal", Status: "CEC Refused"},
	}
}

func TestFilterApply(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name     string
		filter   Filter
		wantRefs []string
	}{
		{
			name:     "no filter returns everything",
			filter:   Filter{},
			wantRefs: []string{"CEC0001/2018", "CEC0450/2019", "CEC0777/2020", "CEC0900/2020"},
		},
		{
			name:     "year range",
			filter:   Filter{YearStart: 2019, YearEnd: 2019},
			wantRefs: []string{"CEC0450/2019"},
		},
		{
			name:     "open-ended year start",
			filter:   Filter{YearStart: 2020},
			wantRefs: []string{"CEC0777/2020", "CEC0900/2020"},
		},
		{
			name:     "status",
			filter:   Filter{Status: "Pending"},
			wantRefs: []string{"CEC0777/2020"},
		},
		{
			name:     "query matches applicant case-insensitively",
			filter:   Filter{Query: "gamma"},
			wantRefs: []string{"CEC0777/2020"},
		},
		{
			name:     "query matches location",
			filter:   Filter{Query: "valencia"},
			wantRefs: []string{"CEC0450/2019"},
		},
		{
			name:     "combined filters intersect",
			filter:   Filter{YearStart: 2020, Status: "CEC Refused"},
			wantRefs: []string{"CEC0900/2020"},
		},
		{
			name:     "no matches",
			filter:   Filter{Query: "zzz"},
			wantRefs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(records)
			refs := make([]string, 0, len(got))
			for _, r := range got {
				refs = append(refs, r.Reference)
			}
			assert.Equal(t, tt.wantRefs, refs)
		})
	}
}

func TestFilterApplyNoMatchSerializesAsEmptyArray(t *testing.T) {
	got := Filter{Query: "zzz"}.Apply(sampleRecords())
	require.NotNil(t, got)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data), "listings must serialize as an empty array, not null")
}

func TestFindByReference(t *testing.T) {
	records := sampleRecords()

	t.Run("exact match", func(t *testing.T) {
		got, ok := FindByReference(records, "CEC0450/2019")
		require.True(t, ok)
		assert.Equal(t, "Beta Quarries", got.Applicant)
	})

	t.Run("numeric match ignores zero padding", func(t *testing.T) {
		got, ok := FindByReference(records, "CEC450")
		require.True(t, ok)
		assert.Equal(t, "CEC0450/2019", got.Reference)
	})

	t.Run("bare number", func(t *testing.T) {
		got, ok := FindByReference(records, "777")
		require.True(t, ok)
		assert.Equal(t, "CEC0777/2020", got.Reference)
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, ok := FindByReference(records, "CEC9999/1999")
		assert.False(t, ok)
	})
}

func TestYearsAndStatuses(t *testing.T) {
	records := sampleRecords()
	records = append(records, Record{Reference: "CEC0002/2018", Year: 2018, Status: "CEC Granted"})

	assert.Equal(t, []int{2018, 2019, 2020}, Years(records))
	assert.Equal(t, []string{"CEC Granted", "CEC Refused", "Pending"}, Statuses(records))
}

func TestRecordPosition(t *testing.T) {
	t.Run("derives lat lng from utm", func(t *testing.T) {
		r := Record{Easting: f(663254), Northing: f(1162355)}
		r.derivePosition()
		require.True(t, r.HasPosition())
		pt := r.Point()
		assert.InDelta(t, -61.51, pt[0], 0.02)
		assert.InDelta(t, 10.51, pt[1], 0.02)
	})

	t.Run("missing northing leaves no position", func(t *testing.T) {
		r := Record{Easting: f(663254)}
		r.derivePosition()
		assert.False(t, r.HasPosition())
	})
}
