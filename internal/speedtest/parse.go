package speedtest

import (
	"regexp"
	"strconv"
)

// Field names as they appear in the record and in log/metric labels.
const (
	FieldPing     = "ping_ms"
	FieldDownload = "download_bit_per_second"
	FieldUpload   = "upload_bit_per_second"
)

// The leading greedy (?s).* makes the last occurrence win when a line is
// repeated, and lets the match span line breaks and any surrounding text.
var (
	pingPattern     = regexp.MustCompile(`(?s)^.*Ping: (\d+\.?\d*) ms`)
	downloadPattern = regexp.MustCompile(`(?s)^.*Download: (\d+(?:\.\d+)?) (\w+)/s`)
	uploadPattern   = regexp.MustCompile(`(?s)^.*Upload: (\d+(?:\.\d+)?) (\w+)/s`)
)

// Reading is a single parsed metric. Valid is false when the metric was
// missing or malformed in the tool output.
type Reading struct {
	Value float64
	Valid bool
}

// Or returns the reading's value, or fallback when the reading is invalid.
func (r Reading) Or(fallback float64) float64 {
	if !r.Valid {
		return fallback
	}
	return r.Value
}

// Result holds the three readings extracted from one speedtest run.
type Result struct {
	Ping     Reading // milliseconds
	Download Reading // bit/s
	Upload   Reading // bit/s
}

// PingMS returns the ping latency, or Sentinel when it could not be parsed.
func (r Result) PingMS() float64 { return r.Ping.Or(Sentinel) }

// DownloadBitPerSecond returns the download throughput, or Sentinel.
func (r Result) DownloadBitPerSecond() float64 { return r.Download.Or(Sentinel) }

// UploadBitPerSecond returns the upload throughput, or Sentinel.
func (r Result) UploadBitPerSecond() float64 { return r.Upload.Or(Sentinel) }

// Missing lists the fields that fell back to Sentinel.
func (r Result) Missing() []string {
	var missing []string
	if !r.Ping.Valid {
		missing = append(missing, FieldPing)
	}
	if !r.Download.Valid {
		missing = append(missing, FieldDownload)
	}
	if !r.Upload.Valid {
		missing = append(missing, FieldUpload)
	}
	return missing
}

// ParseOutput extracts ping, download and upload from speedtest-cli --simple
// output. Each field is searched for independently over the whole text, so
// line order and interleaved diagnostics do not matter, and a malformed line
// only invalidates its own field.
func ParseOutput(output string) Result {
	return Result{
		Ping:     parsePing(output),
		Download: parseThroughput(downloadPattern, output),
		Upload:   parseThroughput(uploadPattern, output),
	}
}

func parsePing(output string) Reading {
	m := pingPattern.FindStringSubmatch(output)
	if m == nil {
		return Reading{}
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

func parseThroughput(pattern *regexp.Regexp, output string) Reading {
	m := pattern.FindStringSubmatch(output)
	if m == nil {
		return Reading{}
	}
	bps := NormalizeToBitPerSecond(m[1], m[2])
	if bps == Sentinel {
		return Reading{}
	}
	return Reading{Value: bps, Valid: true}
}
