package screening

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Output is the generated model-output document.
type Output struct {
	ProjectTitle string   `json:"project_title"`
	CECNumber    string   `json:"cec_number"`
	Date         string   `json:"date"`
	Activities   []string `json:"activities"`
	Score        Score    `json:"score"`
}

// formatOutputDate renders the document date stamp, e.g. "04-March-2026".
func formatOutputDate(t time.Time) string {
	return fmt.Sprintf("%02d-%s-%d", t.Day(), t.Month().String(), t.Year())
}

// WriteXLSX renders the output as a single-sheet workbook.
func (o *Output) WriteXLSX(w io.Writer) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Model Output")
	if err != nil {
		return eris.Wrap(err, "screening: add output sheet")
	}

	addPair := func(label, value string) {
		row := sheet.AddRow()
		row.AddCell().Value = label
		row.AddCell().Value = value
	}

	addPair("Project Title", o.ProjectTitle)
	addPair("CEC Reference", o.CECNumber)
	addPair("Date", o.Date)
	addPair("Designated Activities", strings.Join(o.Activities, ", "))
	addPair("NSL Score", fmt.Sprintf("%.2f%%", o.Score.Percent))
	addPair("Decision", o.Score.Decision)
	addPair("Detail", o.Score.Narrative)

	sheet.AddRow()
	header := sheet.AddRow()
	header.AddCell().Value = "Activity"
	header.AddCell().Value = "Sub-Score"
	for _, a := range o.Score.Activities {
		row := sheet.AddRow()
		row.AddCell().Value = a.Code
		row.AddCell().SetFloatWithFormat(a.SubScore, "0.0000")
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "screening: write output workbook")
	}
	return nil
}
