package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

// MaxBodyBytes caps request bodies read for signature checks.
const MaxBodyBytes = 1 << 20

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller address.
// It also reports the caller to an enclosing Logging middleware.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	if rec, ok := ctx.Value(recordKey{}).(*requestRecord); ok {
		rec.caller = addr
		rec.authenticated = true
	}
	return context.WithValue(ctx, callerKey{}, addr)
}

// Caller returns the authenticated caller stored by CallerAuth.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// CallerAuth authenticates signed requests. Every request other than GET,
// HEAD and OPTIONS must carry valid X-Auction-* headers; reads are
// authenticated when the headers are present and pass through otherwise.
// Each (caller, nonce) pair is accepted once. Nonces outlive the whole
// window in which their timestamp passes the skew check.
// A nil nonces uses an in-memory store. The signed body is restored so
// handlers can decode it.
func CallerAuth(maxSkew time.Duration, nonces domain.NonceStore, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	if nonces == nil {
		nonces = NewMemoryNonces()
	}
	nonceTTL := 2*maxSkew + time.Second
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signed := r.Header.Get(crypto.HeaderSignature) != ""
			if !signed && isRead(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if !signed {
				writeUnauthorized(w, "missing request signature")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeJSONError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller, err := crypto.VerifyRequest(r.Header, r.Method, r.URL.Path, r.URL.RawQuery, body, now(), maxSkew)
			if err != nil {
				writeUnauthorized(w, "invalid request signature")
				return
			}
			fresh, err := nonces.Claim(r.Context(), crypto.ReplayKey(caller, r.Header), nonceTTL)
			if err != nil {
				writeJSONError(w, http.StatusServiceUnavailable, "replay check unavailable")
				return
			}
			if !fresh {
				writeUnauthorized(w, "request already used")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
