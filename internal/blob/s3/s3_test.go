package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

type memWriter struct {
	objects   map[string][]byte
	multipart map[string]int64
	err       error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, multipart: map[string]int64{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	w.multipart[path] = partSize
	return w.Put(ctx, path, data, "")
}

type memAudit struct {
	events []string
	detail []map[string]any
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveSettlement(t *testing.T) {
	w := newMemWriter()
	audit := &memAudit{}
	arch := NewArchiver(w, audit)

	at := time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC)
	report := domain.SettlementReport{
		GeneratedAt: at,
		TotalSupply: 10,
		Proceeds:    uint256.NewInt(48),
		Escrow:      uint256.NewInt(72),
		Allocations: []domain.AllocationRecord{
			{Rank: 0, Bidder: common.HexToAddress("0x01"), Requested: 8, Allocated: 8, Price: uint256.NewInt(5)},
		},
	}

	path, err := arch.ArchiveSettlement(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "reports/allocation/1742601600.json", path)

	var got domain.SettlementReport
	require.NoError(t, json.Unmarshal(w.objects[path], &got))
	assert.Equal(t, uint64(10), got.TotalSupply)
	assert.Equal(t, "48", got.Proceeds.Dec())
	require.Len(t, got.Allocations, 1)
	assert.Equal(t, uint64(8), got.Allocations[0].Allocated)

	require.Equal(t, []string{"settlement.archived"}, audit.events)
	assert.Equal(t, path, audit.detail[0]["path"])
	assert.Equal(t, "48", audit.detail[0]["proceeds"])
}

func TestArchiveSettlementUploadError(t *testing.T) {
	w := newMemWriter()
	w.err = errors.New("bucket gone")
	audit := &memAudit{}

	_, err := NewArchiver(w, audit).ArchiveSettlement(context.Background(), domain.SettlementReport{GeneratedAt: time.Now()})
	require.Error(t, err)
	assert.Empty(t, audit.events)
}

func TestArchiveJournal(t *testing.T) {
	w := newMemWriter()
	arch := NewArchiver(w, nil)
	at := time.Date(2025, 3, 22, 12, 0, 0, 0, time.UTC)

	events := []domain.Event{
		{Seq: 1, ID: "a", Kind: domain.EventAuthorityAdded, At: at, Payload: json.RawMessage(`{"authority":"0x0000000000000000000000000000000000000001"}`)},
		{Seq: 2, ID: "b", Kind: domain.EventBidsPurged, At: at, Payload: json.RawMessage(`{"count":3}`)},
	}

	path, err := arch.ArchiveJournal(context.Background(), events, at)
	require.NoError(t, err)
	assert.Equal(t, "archive/journal/2025-03-22-1742644800.jsonl", path)
	assert.Equal(t, journalPartSize, w.multipart[path])

	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	var seqs []uint64
	for sc.Scan() {
		var ev domain.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestArchiveJournalEmpty(t *testing.T) {
	w := newMemWriter()
	path, err := NewArchiver(w, nil).ArchiveJournal(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, w.objects)
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"http://localhost:9000", true, "http://localhost:9000"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normaliseEndpoint(tc.in, tc.useSSL), tc.in)
	}
}

func TestSortNewestFirst(t *testing.T) {
	t0 := time.Date(2025, 3, 22, 12, 0, 0, 0, time.UTC)
	infos := []domain.BlobInfo{
		{Path: "reports/allocation/1.json", LastModified: t0},
		{Path: "reports/allocation/3.json", LastModified: t0.Add(time.Hour)},
		{Path: "reports/allocation/2.json", LastModified: t0},
	}
	sortNewestFirst(infos)

	var paths []string
	for _, i := range infos {
		paths = append(paths, i.Path)
	}
	assert.Equal(t, []string{
		"reports/allocation/3.json",
		"reports/allocation/2.json",
		"reports/allocation/1.json",
	}, paths)
}

func TestBlobInfo(t *testing.T) {
	at := time.Date(2025, 3, 22, 12, 0, 0, 0, time.UTC)
	info := blobInfo(types.Object{Key: aws.String("a.json"), Size: aws.Int64(42), LastModified: &at})
	assert.Equal(t, domain.BlobInfo{Path: "a.json", Size: 42, LastModified: at}, info)

	assert.Equal(t, domain.BlobInfo{}, blobInfo(types.Object{}))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.False(t, isNotFound(errors.New("connection reset")))
}
