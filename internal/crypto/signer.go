package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an r || s || v secp256k1 signature.
const SignatureLength = 65

// ErrBadSignature is returned when a signature cannot be parsed or recovered.
var ErrBadSignature = errors.New("crypto: malformed signature")

// Signer holds a secp256k1 key and produces EIP-191 signatures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return newSigner(pk), nil
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generating key: %w", err)
	}
	return newSigner(pk), nil
}

func newSigner(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the hex-encoded private key without 0x prefix.
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(ethcrypto.FromECDSA(s.privateKey))
}

func (s *Signer) privateKeyBytes() []byte {
	return ethcrypto.FromECDSA(s.privateKey)
}

// SignHash signs the EIP-191 prefixed form of a 32-byte hash.
func (s *Signer) SignHash(hash common.Hash) ([]byte, error) {
	return s.signDigest(PrefixedHash(hash.Bytes()))
}

// SignMessage signs the EIP-191 prefixed form of an arbitrary message.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	return s.signDigest(PrefixedHash(msg))
}

// signDigest signs a 32-byte digest and returns r || s || v with v in {27,28}.
func (s *Signer) signDigest(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// PrefixedHash computes keccak256("\x19Ethereum Signed Message:\n" || len(msg) || msg).
func PrefixedHash(msg []byte) []byte {
	return ethcrypto.Keccak256(
		[]byte("\x19Ethereum Signed Message:\n"+strconv.Itoa(len(msg))),
		msg,
	)
}

// RecoverHash returns the address that produced sig over the prefixed hash.
func RecoverHash(hash common.Hash, sig []byte) (common.Address, error) {
	return recoverDigest(PrefixedHash(hash.Bytes()), sig)
}

// RecoverMessage returns the address that produced sig over the prefixed message.
func RecoverMessage(msg, sig []byte) (common.Address, error) {
	return recoverDigest(PrefixedHash(msg), sig)
}

func recoverDigest(digest, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrBadSignature, sig[64])
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// pad32 left-pads b to a 32-byte word.
func pad32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
