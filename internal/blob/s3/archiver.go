package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// JournalPrefix is the object key prefix of journal exports.
const JournalPrefix = "archive/journal/"

// journalPartSize is the multipart chunk size for journal exports.
const journalPartSize int64 = 8 * 1024 * 1024

// Archiver implements domain.ReportArchiver. Every upload is recorded in
// the audit log when one is configured.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// ArchiveSettlement uploads the report as one JSON document under
// reports/allocation/<unix>.json.
func (a *Archiver) ArchiveSettlement(ctx context.Context, report domain.SettlementReport) (string, error) {
	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal settlement report: %w", err)
	}

	path := reportPath(report.GeneratedAt)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload settlement report: %w", err)
	}

	proceeds := "0"
	if report.Proceeds != nil {
		proceeds = report.Proceeds.Dec()
	}
	if err := a.logAudit(ctx, "settlement.archived", map[string]any{
		"path":         path,
		"allocations":  len(report.Allocations),
		"proceeds":     proceeds,
		"generated_at": report.GeneratedAt.Format(time.RFC3339),
	}); err != nil {
		return path, err
	}
	return path, nil
}

// ArchiveJournal uploads events as JSONL under
// archive/journal/<YYYY-MM-DD>-<unix>.jsonl.
func (a *Archiver) ArchiveJournal(ctx context.Context, events []domain.Event, at time.Time) (string, error) {
	if len(events) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal journal: %w", err)
	}

	path := journalPath(at)
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), journalPartSize); err != nil {
		return "", fmt.Errorf("s3blob: upload journal: %w", err)
	}

	if err := a.logAudit(ctx, "journal.archived", map[string]any{
		"path":     path,
		"events":   len(events),
		"last_seq": events[len(events)-1].Seq,
	}); err != nil {
		return path, err
	}
	return path, nil
}

func (a *Archiver) logAudit(ctx context.Context, event string, detail map[string]any) error {
	if a.audit == nil {
		return nil
	}
	if err := a.audit.Log(ctx, event, detail); err != nil {
		return fmt.Errorf("s3blob: audit %s: %w", event, err)
	}
	return nil
}

func reportPath(at time.Time) string {
	return fmt.Sprintf("%s%d.json", domain.SettlementReportPrefix, at.Unix())
}

func journalPath(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s%s-%d.jsonl", JournalPrefix, at.Format("2006-01-02"), at.Unix())
}

// marshalJSONL serialises records as newline-delimited JSON.
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

var _ domain.ReportArchiver = (*Archiver)(nil)
