package crypto

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Signed request header names.
const (
	HeaderAddress   = "X-Auction-Address"
	HeaderTimestamp = "X-Auction-Timestamp"
	HeaderNonce     = "X-Auction-Nonce"
	HeaderSignature = "X-Auction-Signature"
)

// MaxNonceLen bounds the nonce header.
const MaxNonceLen = 64

// RequestDigest hashes the signed fields of a request. Each field is
// prefixed with its 8-byte big-endian length.
func RequestDigest(unixTS int64, nonce, method, path, rawQuery string, body []byte) common.Hash {
	fields := [][]byte{
		[]byte(strconv.FormatInt(unixTS, 10)),
		[]byte(nonce),
		[]byte(method),
		[]byte(path),
		[]byte(rawQuery),
		body,
	}
	var buf []byte
	for _, f := range fields {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(f)))
		buf = append(buf, f...)
	}
	return ethcrypto.Keccak256Hash(buf)
}

// RequestHeaders returns the headers that authenticate a request as coming
// from s. target is the request path with its optional "?query".
func (s *Signer) RequestHeaders(method, target string, body []byte) (map[string]string, error) {
	return s.RequestHeadersAt(method, target, body, time.Now().Unix())
}

// RequestHeadersAt is like RequestHeaders but lets the caller supply the
// Unix timestamp. Every call draws a fresh nonce.
func (s *Signer) RequestHeadersAt(method, target string, body []byte, unixTS int64) (map[string]string, error) {
	nonce := uuid.NewString()
	path, rawQuery, _ := strings.Cut(target, "?")
	sig, err := s.SignHash(RequestDigest(unixTS, nonce, method, path, rawQuery, body))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderAddress:   s.address.Hex(),
		HeaderTimestamp: strconv.FormatInt(unixTS, 10),
		HeaderNonce:     nonce,
		HeaderSignature: hexutil.Encode(sig),
	}, nil
}

// VerifyRequest authenticates the signed request headers in h against the
// method, path, query and body, and returns the caller address. Timestamps
// further than maxSkew from now are rejected. Callers still need to reject
// a repeated (address, nonce) pair; see ReplayKey.
func VerifyRequest(h http.Header, method, path, rawQuery string, body []byte, now time.Time, maxSkew time.Duration) (common.Address, error) {
	addrHex := h.Get(HeaderAddress)
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("crypto: invalid %s header", HeaderAddress)
	}
	claimed := common.HexToAddress(addrHex)

	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: invalid %s header", HeaderTimestamp)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return common.Address{}, fmt.Errorf("crypto: request timestamp outside allowed skew of %s", maxSkew)
	}

	nonce := h.Get(HeaderNonce)
	if nonce == "" || len(nonce) > MaxNonceLen {
		return common.Address{}, fmt.Errorf("crypto: invalid %s header", HeaderNonce)
	}

	sig, err := hexutil.Decode(h.Get(HeaderSignature))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: invalid %s header: %w", HeaderSignature, err)
	}
	signer, err := RecoverHash(RequestDigest(ts, nonce, method, path, rawQuery, body), sig)
	if err != nil {
		return common.Address{}, err
	}
	if signer != claimed {
		return common.Address{}, fmt.Errorf("crypto: signature from %s does not match %s", signer.Hex(), claimed.Hex())
	}
	return claimed, nil
}

// ReplayKey identifies a signed request for replay detection: the signer
// and its nonce.
func ReplayKey(caller common.Address, h http.Header) string {
	return strings.ToLower(caller.Hex()) + ":" + h.Get(HeaderNonce)
}
