package domain

import (
	"context"
	"io"
	"time"

	"github.com/holiman/uint256"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// SettlementReportPrefix is the object key prefix of settlement reports.
const SettlementReportPrefix = "reports/allocation/"

// SettlementReport is the document archived after shares are distributed.
type SettlementReport struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	TotalSupply  uint64             `json:"total_supply"`
	OwnerBalance uint64             `json:"owner_balance"`
	Proceeds     *uint256.Int       `json:"proceeds"`
	Escrow       *uint256.Int       `json:"escrow"`
	Allocations  []AllocationRecord `json:"allocations"`
}

// ReportArchiver stores settlement reports and journal exports in cold
// storage and returns the object path.
type ReportArchiver interface {
	ArchiveSettlement(ctx context.Context, report SettlementReport) (string, error)
	ArchiveJournal(ctx context.Context, events []Event, at time.Time) (string, error)
}
