package permit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/ema-gis/cecmap/internal/resilience"
)

// Upstream column names. The spreadsheet endpoint and XLSX exports use the
// same header vocabulary.
const (
	colReference = "CEC Reference"
	colYear      = "Year"
	colApplicant = "Applicant"
	colActivity  = "Designated Activity"
	colLocation  = "Activity Location"
	colEasting   = "Easting"
	colNorthing  = "Northing"
	colStatus    = "Application Determination"
	colDetDate   = "Determination Date"
)

// LoadFromURL fetches the permit dataset from the upstream spreadsheet
// endpoint, which returns a JSON array of row objects. Rows that cannot be
// interpreted at all are dropped with a log entry; rows with bad coordinates
// are kept without a position.
func LoadFromURL(ctx context.Context, client *http.Client, url string) ([]Record, error) {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("permits", url)
	body, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "permit: build dataset request")
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "permit: fetch dataset")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("permit: dataset endpoint returned status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	return ParseRows(body)
}

// ParseRows decodes a JSON array of permit row objects into records,
// deriving positions as it goes.
func ParseRows(data []byte) ([]Record, error) {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "permit: decode dataset rows")
	}

	log := zap.L().With(zap.String("component", "permit.loader"))

	records := make([]Record, 0, len(rows))
	var unpositioned int
	for i, row := range rows {
		rec := recordFromRow(row)
		if rec.Reference == "" && rec.Applicant == "" && rec.Activity == "" {
			log.Warn("permit: skipping empty dataset row", zap.Int("row", i))
			continue
		}
		rec.derivePosition()
		if !rec.HasPosition() {
			unpositioned++
		}
		records = append(records, rec)
	}

	log.Info("permit dataset parsed",
		zap.Int("records", len(records)),
		zap.Int("without_position", unpositioned),
	)
	return records, nil
}

// LoadFromXLSX reads permit records from a spreadsheet export. The first row
// must carry the upstream column headers.
func LoadFromXLSX(path string) ([]Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "permit: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("permit: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) < 1 {
		return nil, eris.New("permit: xlsx sheet is empty")
	}

	header := make(map[int]string)
	for j, cell := range sheet.Rows[0].Cells {
		header[j] = strings.TrimSpace(cell.String())
	}

	log := zap.L().With(zap.String("component", "permit.loader"))

	var records []Record
	for i, row := range sheet.Rows[1:] {
		obj := make(map[string]any, len(row.Cells))
		for j, cell := range row.Cells {
			name, ok := header[j]
			if !ok || name == "" {
				continue
			}
			obj[name] = cell.String()
		}
		rec := recordFromRow(obj)
		if rec.Reference == "" && rec.Applicant == "" && rec.Activity == "" {
			log.Debug("permit: skipping empty xlsx row", zap.Int("row", i+2))
			continue
		}
		rec.derivePosition()
		records = append(records, rec)
	}

	log.Info("permit xlsx parsed", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

// recordFromRow maps an upstream row object onto a Record. Field presence
// and types are not guaranteed; anything unreadable is left zero-valued.
func recordFromRow(row map[string]any) Record {
	return Record{
		Reference:         stringField(row, colReference),
		Year:              intField(row, colYear),
		Applicant:         stringField(row, colApplicant),
		Activity:          stringField(row, colActivity),
		Location:          stringField(row, colLocation),
		Easting:           floatField(row, colEasting),
		Northing:          floatField(row, colNorthing),
		Status:            stringField(row, colStatus),
		DeterminationDate: stringField(row, colDetDate),
	}
}

func stringField(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intField(row map[string]any, key string) int {
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func floatField(row map[string]any, key string) *float64 {
	v, ok := row[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return &n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	default:
		return nil
	}
}
