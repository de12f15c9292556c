// Package export renders stored measurements as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/vesaa/speedtest2dynamodb/internal/models"
)

// TimeFormat is the human-readable timestamp layout of exported rows.
const TimeFormat = "2006-01-02 15:04:05"

// WriteCSV writes a header row and one row per record, oldest first.
// Timestamps are rendered in loc (time.Local when nil).
func WriteCSV(w io.Writer, records []models.Measurement, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	sorted := make([]models.Measurement, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(models.Attributes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, m := range sorted {
		row := []string{
			m.ID,
			m.Time().In(loc).Format(TimeFormat),
			formatNumber(m.PingMS),
			formatNumber(m.DownloadBitPerSecond),
			formatNumber(m.UploadBitPerSecond),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing record %s: %w", m.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatNumber renders f in its shortest plain decimal form, as stored.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
