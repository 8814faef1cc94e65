// Package export writes trace records as JSON, JSONL or CSV.
//
// Every exporter implements trace.Exporter for slices and ExportStream for
// channels produced by trace.Storage.QueryStream:
//
//	exporter, err := export.New("csv")
//	if err != nil {
//	    return err
//	}
//	return exporter.Export(ctx, records, os.Stdout)
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// StreamExporter is an exporter that can also consume a record channel.
type StreamExporter interface {
	trace.Exporter
	ExportStream(ctx context.Context, recordsCh <-chan *trace.Record, w io.Writer) error
}

// Formats lists the supported export formats.
var Formats = []string{"json", "jsonl", "csv"}

// New returns the exporter for format.
func New(format string) (StreamExporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(true), nil
	case "jsonl":
		return NewJSONLExporter(), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (supported: %v)", format, Formats)
	}
}

// JSONExporter writes records as one JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes records as a JSON array. An empty slice yields "[]".
func (e *JSONExporter) Export(ctx context.Context, records []*trace.Record, w io.Writer) error {
	if records == nil {
		records = []*trace.Record{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return trace.NewExportError("json", len(records), err)
	}
	if _, err := w.Write(data); err != nil {
		return trace.NewExportError("json", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel as a JSON array without
// holding them all in memory.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *trace.Record, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return trace.NewExportError("json", 0, err)
	}

	first := true
	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return trace.NewExportError("json", recordCount, err)
				}
				return nil
			}

			if !first {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := w.Write([]byte(sep)); err != nil {
					return trace.NewExportError("json", recordCount, err)
				}
			}
			first = false

			var data []byte
			var err error
			if e.Pretty {
				data, err = json.MarshalIndent(record, "  ", "  ")
			} else {
				data, err = json.Marshal(record)
			}
			if err != nil {
				return trace.NewExportError("json", recordCount, err)
			}
			if _, err := w.Write(data); err != nil {
				return trace.NewExportError("json", recordCount, err)
			}
			recordCount++
		}
	}
}

// JSONLExporter writes one compact JSON object per line, the same layout
// the JSONL storage backend appends.
type JSONLExporter struct{}

// NewJSONLExporter creates a JSONL exporter.
func NewJSONLExporter() *JSONLExporter {
	return &JSONLExporter{}
}

// Export writes records one per line.
func (e *JSONLExporter) Export(ctx context.Context, records []*trace.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(r); err != nil {
			return trace.NewExportError("jsonl", i, err)
		}
	}
	return nil
}

// ExportStream writes records from a channel one per line.
func (e *JSONLExporter) ExportStream(ctx context.Context, recordsCh <-chan *trace.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-recordsCh:
			if !ok {
				return nil
			}
			if err := enc.Encode(record); err != nil {
				return trace.NewExportError("jsonl", recordCount, err)
			}
			recordCount++
		}
	}
}
