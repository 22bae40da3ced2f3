package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
)

// Exporter writes audit trail events to CSV, Parquet or JSON files
type Exporter struct {
	store  audit.Store
	logger *zap.Logger
}

// New creates a new exporter backed by the given audit store
func New(store audit.Store, logger *zap.Logger) *Exporter {
	return &Exporter{
		store:  store,
		logger: logger,
	}
}

// Export queries events matching the filter and writes them to outputPath.
// The format is detected from the file extension.
func (e *Exporter) Export(ctx context.Context, filter audit.Filter, outputPath string) (*Result, error) {
	start := time.Now()
	format := DetectFileFormat(outputPath)

	events, err := e.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	e.logger.Info("Exporting audit events",
		zap.Int("events", len(events)),
		zap.String("output", outputPath),
		zap.String("format", string(format)),
	)

	records := make([]ExportRecord, 0, len(events))
	failed := int64(0)
	for _, event := range events {
		record, err := flatten(event)
		if err != nil {
			e.logger.Warn("Skipping unexportable event",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			failed++
			continue
		}
		records = append(records, record)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatParquet:
		err = writeParquet(file, records)
	case FormatJSON:
		err = writeJSON(file, records)
	default:
		err = writeCSV(file, records)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write %s export: %w", format, err)
	}

	result := &Result{
		TotalEvents: int64(len(events)),
		Written:     int64(len(records)),
		Failed:      failed,
		Duration:    time.Since(start),
		OutputFile:  outputPath,
		Format:      format,
	}

	e.logger.Info("Export completed",
		zap.Int64("written", result.Written),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func flatten(event *audit.Event) (ExportRecord, error) {
	findings, err := json.Marshal(event.Findings)
	if err != nil {
		return ExportRecord{}, fmt.Errorf("failed to encode findings: %w", err)
	}

	return ExportRecord{
		ID:        event.ID,
		EventType: event.Type,
		RequestID: event.RequestID,
		Path:      event.Path,
		ClientIP:  event.ClientIP,
		Severity:  event.Severity,
		Findings:  string(findings),
		Signature: event.Signature,
		CreatedAt: event.Timestamp.Format(time.RFC3339Nano),
	}, nil
}

func writeCSV(file *os.File, records []ExportRecord) error {
	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "event_type", "request_id", "path", "client_ip", "severity", "findings", "signature", "created_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.EventType,
			r.RequestID,
			r.Path,
			r.ClientIP,
			r.Severity,
			r.Findings,
			r.Signature,
			r.CreatedAt,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeParquet(file *os.File, records []ExportRecord) error {
	writer := parquet.NewGenericWriter[ExportRecord](file)

	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			writer.Close()
			return err
		}
	}

	return writer.Close()
}

// writeJSON writes one JSON object per line
func writeJSON(file *os.File, records []ExportRecord) error {
	encoder := json.NewEncoder(file)
	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
