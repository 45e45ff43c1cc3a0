package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shareauction/internal/auction"
	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
	"github.com/alanyoungcy/shareauction/internal/server/handler"
	"github.com/alanyoungcy/shareauction/internal/service"
)

var start = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type apiEnv struct {
	t         *testing.T
	now       time.Time
	schedule  domain.Schedule
	owner     *crypto.Signer
	auditor   *crypto.Signer
	authority *crypto.Signer
	auc       *auction.Auction
	h         http.Handler
}

func newSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.GenerateSigner()
	require.NoError(t, err)
	return s
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	e := &apiEnv{
		t:         t,
		now:       start.Add(time.Hour),
		owner:     newSigner(t),
		auditor:   newSigner(t),
		authority: newSigner(t),
		schedule: domain.Schedule{
			Start:   start,
			Bidding: 24 * time.Hour,
			Reveal:  24 * time.Hour,
			Claim:   24 * time.Hour,
		},
	}
	clock := auction.ClockFunc(func() time.Time { return e.now })
	journal := auction.NewJournal()
	reg := auction.NewRegistry(e.auditor.Address(), journal, clock)
	auc, err := auction.New(auction.Config{
		Owner:                e.owner.Address(),
		TotalSupply:          10,
		Schedule:             e.schedule,
		EnforceInvestorOrder: true,
	}, reg, journal, clock)
	require.NoError(t, err)
	e.auc = auc

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewAuctionService(auc, reg, journal, nil, service.Options{}, logger)
	e.h = NewHandler(Config{MaxClockSkew: time.Minute}, Handlers{
		Health:      handler.NewHealthHandler(nil, logger),
		Status:      handler.NewStatusHandler(svc),
		Registry:    handler.NewRegistryHandler(svc, logger),
		Bids:        handler.NewBidHandler(svc, logger),
		Allocations: handler.NewAllocationHandler(svc, logger),
		Settlement:  handler.NewSettlementHandler(svc, logger),
		Journal:     handler.NewJournalHandler(svc, logger),
	}, nil, Backends{}, logger)
	return e
}

// do sends a request signed by s, or unsigned when s is nil.
func (e *apiEnv) do(s *crypto.Signer, method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		raw = b
	}
	r := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if s != nil {
		h, err := s.RequestHeaders(method, path, raw)
		require.NoError(e.t, err)
		for k, v := range h {
			r.Header.Set(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type bidder struct {
	signer *crypto.Signer
	body   map[string]any
}

func (e *apiEnv) certifiedBidder(shares, price uint64) bidder {
	e.t.Helper()
	s := newSigner(e.t)
	possession, err := crypto.SignPossession(s)
	require.NoError(e.t, err)
	cert, sig, err := crypto.IssueCertificate(e.authority, s.Address(), 2099, possession)
	require.NoError(e.t, err)
	return bidder{signer: s, body: map[string]any{
		"certificate":   cert,
		"authority_sig": hexutil.Bytes(sig),
		"binding":       crypto.OwnershipBinding(cert, s.Address()),
		"sealed_hash":   crypto.SealBid(shares, uint256.NewInt(price)),
	}}
}

func TestFullAuctionOverHTTP(t *testing.T) {
	e := newAPIEnv(t)

	rec := e.do(nil, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Registry.
	add := map[string]any{"authority": e.authority.Address()}
	assert.Equal(t, http.StatusUnauthorized, e.do(nil, http.MethodPost, "/api/registry/authorities", add).Code)
	assert.Equal(t, http.StatusForbidden, e.do(e.owner, http.MethodPost, "/api/registry/authorities", add).Code)
	rec = e.do(e.auditor, http.MethodPost, "/api/registry/authorities", add)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decode[domain.RegistryEntry](t, rec).Active)

	// Bidding.
	a := e.certifiedBidder(4, 3)
	b := e.certifiedBidder(3, 5)
	rec = e.do(a.signer, http.MethodPost, "/api/bids", a.body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.CommitmentSealed, decode[domain.BidCommitment](t, rec).Status)
	require.Equal(t, http.StatusCreated, e.do(b.signer, http.MethodPost, "/api/bids", b.body).Code)

	// Someone else replaying a's certificate is an ownership mismatch.
	thief := newSigner(t)
	assert.Equal(t, http.StatusForbidden, e.do(thief, http.MethodPost, "/api/bids", a.body).Code)

	// Reveal is phase gated.
	reveal := func(shares, price, payment uint64) map[string]any {
		return map[string]any{
			"shares":  []uint64{shares},
			"prices":  []*uint256.Int{uint256.NewInt(price)},
			"payment": uint256.NewInt(payment),
		}
	}
	assert.Equal(t, http.StatusConflict, e.do(a.signer, http.MethodPost, "/api/reveal", reveal(4, 3, 12)).Code)

	e.now = e.schedule.BiddingEnds().Add(time.Minute)
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(a.signer, http.MethodPost, "/api/reveal", reveal(4, 3, 11)).Code)
	require.Equal(t, http.StatusOK, e.do(a.signer, http.MethodPost, "/api/reveal", reveal(4, 3, 12)).Code)
	require.Equal(t, http.StatusOK, e.do(b.signer, http.MethodPost, "/api/reveal", reveal(3, 5, 15)).Code)

	rec = e.do(nil, http.MethodGet, "/api/bids/"+a.signer.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hash")
	assert.Contains(t, rec.Body.String(), `"status":"revealed"`)

	// Claim: load, verify, distribute.
	e.now = e.schedule.RevealEnds().Add(time.Minute)
	bids := e.auc.RevealedBids()
	auction.SortInvestors(bids)
	cols := domain.InvestorColumns{}
	for _, rb := range bids {
		cols.Addresses = append(cols.Addresses, rb.Bidder)
		cols.Timestamps = append(cols.Timestamps, rb.Timestamp)
		cols.Shares = append(cols.Shares, rb.Shares)
		cols.Prices = append(cols.Prices, rb.Price)
	}
	assert.Equal(t, http.StatusForbidden, e.do(a.signer, http.MethodPost, "/api/admin/investors", cols).Code)
	rec = e.do(e.owner, http.MethodPost, "/api/admin/investors", cols)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(nil, http.MethodGet, "/api/investors/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.OrderReport](t, rec).Valid)

	rec = e.do(nil, http.MethodGet, "/api/investors/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, b.signer.Address(), decode[domain.Investor](t, rec).Bidder)
	assert.Equal(t, http.StatusNotFound, e.do(nil, http.MethodGet, "/api/investors/9", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(nil, http.MethodGet, "/api/investors/x", nil).Code)

	rec = e.do(e.owner, http.MethodPost, "/api/admin/distribute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	allocs := decode[struct {
		Allocations []domain.AllocationRecord `json:"allocations"`
	}](t, rec).Allocations
	require.Len(t, allocs, 2)
	assert.Equal(t, uint64(3), allocs[0].Allocated)
	assert.Equal(t, uint64(4), allocs[1].Allocated)
	assert.Equal(t, http.StatusConflict, e.do(e.owner, http.MethodPost, "/api/admin/distribute", nil).Code)

	// Settlement.
	rec = e.do(e.owner, http.MethodPost, "/api/admin/payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":"27"`)
	assert.Equal(t, http.StatusConflict, e.do(e.owner, http.MethodPost, "/api/admin/payment", nil).Code)

	rec = e.do(a.signer, http.MethodPost, "/api/refunds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":"0"`)
	assert.Equal(t, http.StatusConflict, e.do(a.signer, http.MethodPost, "/api/refunds", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(thief, http.MethodPost, "/api/refunds", nil).Code)

	// Shares.
	rec = e.do(nil, http.MethodGet, "/api/shares/"+a.signer.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":4`)

	move := map[string]any{"to": thief.Address(), "amount": 5}
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(a.signer, http.MethodPost, "/api/shares/transfer", move).Code)
	move["amount"] = 1
	assert.Equal(t, http.StatusNoContent, e.do(a.signer, http.MethodPost, "/api/shares/transfer", move).Code)
	assert.Equal(t, uint64(1), e.auc.BalanceOf(thief.Address()))
}

func TestReadEndpoints(t *testing.T) {
	e := newAPIEnv(t)

	rec := e.do(nil, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[domain.AuctionStatus](t, rec)
	assert.Equal(t, domain.PhaseBidding, st.Phase)
	assert.Equal(t, uint64(10), st.OwnerBalance)

	require.Equal(t, http.StatusCreated, e.do(e.auditor, http.MethodPost, "/api/registry/authorities",
		map[string]any{"authority": e.authority.Address()}).Code)

	rec = e.do(nil, http.MethodGet, "/api/events?after=0&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evs := decode[struct {
		Events []domain.Event `json:"events"`
	}](t, rec).Events
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventAuthorityAdded, evs[0].Kind)

	assert.Equal(t, http.StatusBadRequest, e.do(nil, http.MethodGet, "/api/events?after=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(nil, http.MethodGet, "/api/reports", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(nil, http.MethodGet, "/api/shares/nope", nil).Code)

	assert.Equal(t, http.StatusUnauthorized, e.do(nil, http.MethodGet, "/api/audit", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(e.authority, http.MethodGet, "/api/audit", nil).Code)

	rec = e.do(e.auditor, http.MethodDelete, "/api/registry/authorities/"+e.authority.Address().Hex(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(nil, http.MethodGet, "/api/registry/authorities/"+e.authority.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.RegistryEntry](t, rec).Active)
}

func TestMalformedBody(t *testing.T) {
	e := newAPIEnv(t)
	r := httptest.NewRequest(http.MethodPost, "/api/bids", bytes.NewReader([]byte(`{"certificate":`)))
	h, err := e.owner.RequestHeaders(http.MethodPost, "/api/bids", []byte(`{"certificate":`))
	require.NoError(t, err)
	for k, v := range h {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignedRequestReplayRejected(t *testing.T) {
	e := newAPIEnv(t)
	holder := newSigner(t)

	raw, err := json.Marshal(map[string]any{"to": holder.Address(), "amount": 3})
	require.NoError(t, err)
	h, err := e.owner.RequestHeaders(http.MethodPost, "/api/shares/transfer", raw)
	require.NoError(t, err)

	send := func() int {
		r := httptest.NewRequest(http.MethodPost, "/api/shares/transfer", bytes.NewReader(raw))
		for k, v := range h {
			r.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		e.h.ServeHTTP(rec, r)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, send())
	assert.Equal(t, http.StatusUnauthorized, send())
	assert.Equal(t, uint64(3), e.auc.BalanceOf(holder.Address()))
	assert.Equal(t, uint64(7), e.auc.BalanceOf(e.owner.Address()))
}
