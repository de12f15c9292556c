// Package models defines the measurement record shared by the store
// backends, the CSV export and the HTTP API.
package models

import "time"

// Attribute names of a stored measurement, in export column order.
const (
	AttrID                   = "id"
	AttrTimestamp            = "timestamp"
	AttrPingMS               = "ping_ms"
	AttrDownloadBitPerSecond = "download_bit_per_second"
	AttrUploadBitPerSecond   = "upload_bit_per_second"
)

// Attributes lists every attribute of a Measurement in export order.
var Attributes = []string{
	AttrID,
	AttrTimestamp,
	AttrPingMS,
	AttrDownloadBitPerSecond,
	AttrUploadBitPerSecond,
}

// Measurement is one speedtest result. A record is written once per
// successful run and never updated. Metrics that could not be parsed hold -1.
type Measurement struct {
	ID        string `gorm:"column:id;primaryKey" json:"id" dynamodbav:"id"`
	Timestamp int64  `gorm:"column:timestamp;primaryKey;autoIncrement:false" json:"timestamp" dynamodbav:"timestamp"` // seconds since epoch

	// ── Metrics ──────────────────────────────────────────────────────────────
	PingMS               float64 `gorm:"column:ping_ms" json:"ping_ms" dynamodbav:"ping_ms"`
	DownloadBitPerSecond float64 `gorm:"column:download_bit_per_second" json:"download_bit_per_second" dynamodbav:"download_bit_per_second"`
	UploadBitPerSecond   float64 `gorm:"column:upload_bit_per_second" json:"upload_bit_per_second" dynamodbav:"upload_bit_per_second"`
}

// Time returns the capture time of the measurement.
func (m Measurement) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}
