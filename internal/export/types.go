package export

import (
	"time"
)

// ExportRecord is one flattened audit event in an export file
type ExportRecord struct {
	ID        int64  `csv:"id" parquet:"id" json:"id"`
	EventType string `csv:"event_type" parquet:"event_type" json:"event_type"`
	RequestID string `csv:"request_id" parquet:"request_id" json:"request_id"`
	Path      string `csv:"path" parquet:"path" json:"path"`
	ClientIP  string `csv:"client_ip" parquet:"client_ip" json:"client_ip"`
	Severity  string `csv:"severity" parquet:"severity" json:"severity"`
	Findings  string `csv:"findings" parquet:"findings" json:"findings"`
	Signature string `csv:"signature" parquet:"signature" json:"signature"`
	CreatedAt string `csv:"created_at" parquet:"created_at" json:"created_at"`
}

// Result summarizes one export run
type Result struct {
	TotalEvents int64         `json:"total_events"`
	Written     int64         `json:"written"`
	Failed      int64         `json:"failed"`
	Duration    time.Duration `json:"duration"`
	OutputFile  string        `json:"output_file"`
	Format      FileFormat    `json:"format"`
}

// FileFormat represents supported output formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects the output format from the file extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case len(filename) >= 4 && filename[len(filename)-4:] == ".csv":
		return FormatCSV
	case len(filename) >= 8 && filename[len(filename)-8:] == ".parquet":
		return FormatParquet
	case len(filename) >= 5 && filename[len(filename)-5:] == ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}
