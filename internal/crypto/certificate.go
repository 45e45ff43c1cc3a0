package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// PossessionMessage is the text a subject signs to prove control of addr.
func PossessionMessage(addr common.Address) []byte {
	return []byte(fmt.Sprintf("The owner of %s address.", addr.Hex()))
}

// SignPossession produces the subject's proof of possession for its own
// address.
func SignPossession(subject *Signer) ([]byte, error) {
	return subject.SignMessage(PossessionMessage(subject.Address()))
}

// VerifyPossession reports whether sig was produced by subject over its
// possession message.
func VerifyPossession(subject common.Address, sig []byte) bool {
	signer, err := RecoverMessage(PossessionMessage(subject), sig)
	return err == nil && signer == subject
}

// IssueCertificate is the authority side of issuance: it checks the
// subject's possession proof, builds the certificate and signs its digest.
func IssueCertificate(authority *Signer, subject common.Address, expiryYear uint16, possessionSig []byte) (domain.Certificate, []byte, error) {
	if !VerifyPossession(subject, possessionSig) {
		return domain.Certificate{}, nil, errors.New("crypto: possession signature does not match subject")
	}
	cert := domain.Certificate{
		Subject:       subject,
		Authority:     authority.Address(),
		ExpiryYear:    expiryYear,
		PossessionSig: append([]byte(nil), possessionSig...),
	}
	sig, err := authority.SignHash(CertificateDigest(cert))
	if err != nil {
		return domain.Certificate{}, nil, fmt.Errorf("crypto: signing certificate: %w", err)
	}
	return cert, sig, nil
}

// RecoverCertificateSigner returns the address that signed cert's digest.
func RecoverCertificateSigner(cert domain.Certificate, sig []byte) (common.Address, error) {
	return RecoverHash(CertificateDigest(cert), sig)
}
