// Package jobs reads the route job list from a spreadsheet or CSV file.
package jobs

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/freight-quotes/internal/model"
)

// ErrMissingColumns is returned when the header names no origin or
// destination column.
var ErrMissingColumns = eris.New("jobs: origin and destination columns not found")

type field int

const (
	fieldOrigin field = iota
	fieldDestination
	fieldCommodity
	fieldContainer
	fieldWeight
	fieldPriceOwner
	fieldOffset
)

// aliases maps normalized header text to a job field. Headers are matched
// after lower-casing, stripping accents and collapsing "_" and spaces.
var aliases = map[string]field{
	"origem":            fieldOrigin,
	"origin":            fieldOrigin,
	"porto de origem":   fieldOrigin,
	"porto de destino":  fieldDestination,
	"destino":           fieldDestination,
	"destination":       fieldDestination,
	"commodity":         fieldCommodity,
	"mercadoria":        fieldCommodity,
	"container":         fieldContainer,
	"container type":    fieldContainer,
	"tipo de container": fieldContainer,
	"weight":            fieldWeight,
	"weight kg":         fieldWeight,
	"peso":              fieldWeight,
	"peso kg":           fieldWeight,
	"price owner":       fieldPriceOwner,
	"date offset":       fieldOffset,
	"date offset days":  fieldOffset,
}

// NormalizeHeader folds a header cell for alias matching: "Porto_de_Destino "
// and "PORTO DE DESTINO" both become "porto de destino".
func NormalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ReplaceAll(strings.ToLower(folded), "_", " ")
	return strings.Join(strings.Fields(folded), " ")
}

// Parse turns raw rows into jobs. The first row is the header. Rows with a
// blank origin or destination are skipped with a warning. Index is the
// position among the jobs returned.
func Parse(rows [][]string) ([]model.RouteJob, error) {
	if len(rows) == 0 {
		return nil, ErrMissingColumns
	}

	cols := map[field]int{}
	for i, h := range rows[0] {
		f, ok := aliases[NormalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	if _, ok := cols[fieldOrigin]; !ok {
		return nil, ErrMissingColumns
	}
	if _, ok := cols[fieldDestination]; !ok {
		return nil, ErrMissingColumns
	}

	cell := func(row []string, f field) string {
		i, ok := cols[f]
		if !ok || i >= len(row) {
			return ""
		}
		v := strings.TrimSpace(row[i])
		if model.IsBlank(v) {
			return ""
		}
		return v
	}

	var out []model.RouteJob
	for n, row := range rows[1:] {
		line := n + 2
		job := model.RouteJob{
			Origin:      cell(row, fieldOrigin),
			Destination: cell(row, fieldDestination),
		}
		if job.Origin == "" || job.Destination == "" {
			if !emptyRow(row) {
				zap.L().Warn("jobs: skipping row with blank origin or destination",
					zap.Int("row", line),
					zap.String("origin", job.Origin),
					zap.String("destination", job.Destination),
				)
			}
			continue
		}

		job.Commodity = cell(row, fieldCommodity)
		job.ContainerType = cell(row, fieldContainer)
		job.PriceOwner = cell(row, fieldPriceOwner)
		if v := cell(row, fieldWeight); v != "" {
			w, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
			if err != nil {
				zap.L().Warn("jobs: ignoring unreadable weight", zap.Int("row", line), zap.String("weight", v))
			} else {
				job.WeightKg = w
			}
		}
		if v := cell(row, fieldOffset); v != "" {
			d, err := strconv.Atoi(strings.TrimSuffix(v, ".0"))
			if err != nil {
				zap.L().Warn("jobs: ignoring unreadable date offset", zap.Int("row", line), zap.String("offset", v))
			} else {
				job.DateOffsetDays = &d
			}
		}

		job.Index = len(out)
		out = append(out, job)
	}
	return out, nil
}

func emptyRow(row []string) bool {
	for _, c := range row {
		if !model.IsBlank(c) {
			return false
		}
	}
	return true
}
