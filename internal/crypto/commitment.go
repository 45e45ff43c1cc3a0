package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

var (
	// ShareAuctionBid(uint256 shares,uint256 price)
	bidTypeHash = ethcrypto.Keccak256(
		[]byte("ShareAuctionBid(uint256 shares,uint256 price)"),
	)

	// Certificate(address subject,address authority,uint256 expiryYear,bytes possessionSig)
	certificateTypeHash = ethcrypto.Keccak256(
		[]byte("Certificate(address subject,address authority,uint256 expiryYear,bytes possessionSig)"),
	)
)

// SealBid computes the commitment hash for a (shares, price) pair. A nil
// price hashes as zero.
func SealBid(shares uint64, price *uint256.Int) common.Hash {
	var p [32]byte
	if price != nil {
		p = price.Bytes32()
	}
	return common.BytesToHash(ethcrypto.Keccak256(
		bidTypeHash,
		uint64Word(shares),
		p[:],
	))
}

// CertificateDigest is the hash an authority signs when issuing cert.
func CertificateDigest(cert domain.Certificate) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		concatBytes(
			certificateTypeHash,
			pad32(cert.Subject.Bytes()),
			pad32(cert.Authority.Bytes()),
			uint64Word(uint64(cert.ExpiryYear)),
			ethcrypto.Keccak256(cert.PossessionSig),
		),
	))
}

// OwnershipBinding ties a certificate to the address presenting it.
func OwnershipBinding(cert domain.Certificate, caller common.Address) common.Hash {
	digest := CertificateDigest(cert)
	return common.BytesToHash(ethcrypto.Keccak256(
		digest.Bytes(),
		pad32(caller.Bytes()),
	))
}

func uint64Word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}
