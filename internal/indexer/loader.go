package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

// API paths the loader calls.
const (
	PathStatus      = "/api/status"
	PathInvestors   = "/api/admin/investors"
	PathVerifyOrder = "/api/investors/verify"
)

// Loader submits a ranked investor list to the auction.
type Loader interface {
	Status(ctx context.Context) (domain.AuctionStatus, error)
	LoadInvestors(ctx context.Context, cols domain.InvestorColumns) error
	VerifyOrder(ctx context.Context) ([]domain.OrderViolation, error)
}

// HTTPLoader talks to auctiond over its signed-request API as the
// administrator.
type HTTPLoader struct {
	baseURL    string
	signer     *crypto.Signer
	httpClient *http.Client
}

// NewHTTPLoader creates a loader for the API at baseURL, e.g.
// "http://127.0.0.1:8080".
func NewHTTPLoader(baseURL string, signer *crypto.Signer) *HTTPLoader {
	return &HTTPLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches the auction status snapshot.
func (l *HTTPLoader) Status(ctx context.Context) (domain.AuctionStatus, error) {
	var st domain.AuctionStatus
	body, err := l.do(ctx, http.MethodGet, PathStatus, nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, fmt.Errorf("indexer: decode status: %w", err)
	}
	return st, nil
}

// LoadInvestors posts the four columns to the admin endpoint.
func (l *HTTPLoader) LoadInvestors(ctx context.Context, cols domain.InvestorColumns) error {
	_, err := l.do(ctx, http.MethodPost, PathInvestors, cols)
	return err
}

// VerifyOrder asks the auction to re-check the loaded list.
func (l *HTTPLoader) VerifyOrder(ctx context.Context) ([]domain.OrderViolation, error) {
	body, err := l.do(ctx, http.MethodGet, PathVerifyOrder, nil)
	if err != nil {
		return nil, err
	}
	var rep domain.OrderReport
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("indexer: decode order report: %w", err)
	}
	return rep.Violations, nil
}

// do builds, signs, sends and reads one request.
func (l *HTTPLoader) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("indexer: marshal request body: %w", err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("indexer: create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	headers, err := l.signer.RequestHeaders(method, path, payload)
	if err != nil {
		return nil, fmt.Errorf("indexer: sign request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indexer: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("indexer: %s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("indexer: %s %s: status %d", method, path, resp.StatusCode)
	}
	return respBody, nil
}

var _ Loader = (*HTTPLoader)(nil)
