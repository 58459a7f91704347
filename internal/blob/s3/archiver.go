package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gridsim/marketsim/internal/domain"
)

// RunArchiver implements domain.Archiver by serializing a simulation run's
// results to JSONL and uploading them through a domain.BlobWriter.
//
// A run produces two objects:
//
//	runs/{runID}/results.jsonl  one line per clearing pass (full books)
//	runs/{runID}/records.jsonl  one line per product clearing record
type RunArchiver struct {
	writer domain.BlobWriter
}

// NewRunArchiver creates a RunArchiver on top of the given writer.
func NewRunArchiver(writer domain.BlobWriter) *RunArchiver {
	return &RunArchiver{writer: writer}
}

// ArchiveRun uploads the run's results. An empty result set is a no-op.
func (a *RunArchiver) ArchiveRun(ctx context.Context, runID string, results []domain.MarketResult) error {
	if len(results) == 0 {
		return nil
	}

	body, err := marshalJSONL(results)
	if err != nil {
		return fmt.Errorf("s3blob: archive run %s: %w", runID, err)
	}
	if err := a.writer.Write(ctx, runPath(runID, "results"), "application/x-ndjson", body); err != nil {
		return fmt.Errorf("s3blob: archive run %s: %w", runID, err)
	}

	type flatRecord struct {
		Market string `json:"market"`
		domain.ClearingRecord
	}
	var flat []flatRecord
	for _, res := range results {
		for _, rec := range res.Records {
			flat = append(flat, flatRecord{Market: res.Market, ClearingRecord: rec})
		}
	}
	body, err = marshalJSONL(flat)
	if err != nil {
		return fmt.Errorf("s3blob: archive run %s records: %w", runID, err)
	}
	if err := a.writer.Write(ctx, runPath(runID, "records"), "application/x-ndjson", body); err != nil {
		return fmt.Errorf("s3blob: archive run %s records: %w", runID, err)
	}
	return nil
}

func runPath(runID, kind string) string {
	return fmt.Sprintf("runs/%s/%s.jsonl", runID, kind)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*RunArchiver)(nil)
