// Package crypto provides the auction's hashing and signature primitives:
// sealed-bid commitments, certificate digests and ownership bindings,
// EIP-191 signing and recovery, signed HTTP requests and password-encrypted
// key files for authorities and bidders.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion = 2
	kdfIterations  = 480_000
	kdfSaltLen     = 16
)

// keyFile is an administrator, auditor, authority or bidder key sealed
// under a password with PBKDF2-SHA256 and AES-256-GCM. The address is kept
// in clear so operators can tell files apart, and is checked on open.
type keyFile struct {
	Version    int            `json:"version"`
	Address    common.Address `json:"address"`
	Iterations int            `json:"iterations"`
	Salt       hexutil.Bytes  `json:"salt"`
	Nonce      hexutil.Bytes  `json:"nonce"`
	Ciphertext hexutil.Bytes  `json:"ciphertext"`
}

// KeyConfig names where a signing key comes from. auctionctl fills it from
// flags or the [keys] section; auctiond from [indexer].
type KeyConfig struct {
	// RawPrivateKey is a hex key, with or without 0x. It wins when set.
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

func keyAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealKey encrypts the signer's key under password.
func SealKey(s *Signer, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: seal key: empty password")
	}
	kf := keyFile{
		Version:    keyFileVersion,
		Address:    s.Address(),
		Iterations: kdfIterations,
		Salt:       make([]byte, kdfSaltLen),
	}
	if _, err := rand.Read(kf.Salt); err != nil {
		return nil, fmt.Errorf("crypto: seal key: %w", err)
	}
	aead, err := keyAEAD(password, kf.Salt, kf.Iterations)
	if err != nil {
		return nil, fmt.Errorf("crypto: seal key: %w", err)
	}
	kf.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(kf.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: seal key: %w", err)
	}
	// The address is bound as associated data so it cannot be swapped.
	kf.Ciphertext = aead.Seal(nil, kf.Nonce, s.privateKeyBytes(), kf.Address.Bytes())
	return json.MarshalIndent(kf, "", "  ")
}

// OpenKey decrypts a file written by SealKey.
func OpenKey(blob []byte, password string) (*Signer, error) {
	var kf keyFile
	if err := json.Unmarshal(blob, &kf); err != nil {
		return nil, fmt.Errorf("crypto: open key: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: open key: unsupported version %d", kf.Version)
	}
	if kf.Iterations <= 0 {
		return nil, fmt.Errorf("crypto: open key: bad iteration count %d", kf.Iterations)
	}
	aead, err := keyAEAD(password, kf.Salt, kf.Iterations)
	if err != nil {
		return nil, fmt.Errorf("crypto: open key: %w", err)
	}
	if len(kf.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: open key: nonce is %d bytes", len(kf.Nonce))
	}
	raw, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, kf.Address.Bytes())
	if err != nil {
		return nil, errors.New("crypto: open key: wrong password or corrupted file")
	}
	pk, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: open key: %w", err)
	}
	s := newSigner(pk)
	if s.Address() != kf.Address {
		return nil, fmt.Errorf("crypto: open key: key is %s, file says %s", s.Address().Hex(), kf.Address.Hex())
	}
	return s, nil
}

// LoadSigner resolves cfg to a Signer: the raw key if set, otherwise the
// encrypted file.
func LoadSigner(cfg KeyConfig) (*Signer, error) {
	switch {
	case cfg.RawPrivateKey != "":
		return NewSigner(cfg.RawPrivateKey)
	case cfg.EncryptedKeyPath != "":
		blob, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		return OpenKey(blob, cfg.KeyPassword)
	default:
		return nil, errors.New("crypto: no signing key configured")
	}
}

// WriteEncryptedKey seals s under password and writes it to path, readable
// by the owner only.
func WriteEncryptedKey(path string, s *Signer, password string) error {
	blob, err := SealKey(s, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("crypto: write key file: %w", err)
	}
	return nil
}
