package auction

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

// VerifyAndBind checks the full certificate chain for caller:
// the authority signature over the certificate digest, the subject's
// possession proof, the expiry year and the per-caller ownership binding.
func VerifyAndBind(trust TrustSource, now time.Time, cert domain.Certificate, authSig []byte, binding common.Hash, caller common.Address) error {
	signer, err := crypto.RecoverCertificateSigner(cert, authSig)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthorizationFailure, err)
	}
	if signer != cert.Authority {
		return fmt.Errorf("%w: signed by %s, issued as %s",
			domain.ErrAuthorizationFailure, signer.Hex(), cert.Authority.Hex())
	}
	if !trust.IsTrusted(signer) {
		return fmt.Errorf("%w: authority %s is not trusted", domain.ErrAuthorizationFailure, signer.Hex())
	}
	if !crypto.VerifyPossession(cert.Subject, cert.PossessionSig) {
		return fmt.Errorf("%w: possession proof does not match subject", domain.ErrAuthorizationFailure)
	}

	// Valid through the end of the expiry year.
	if int(cert.ExpiryYear) < now.UTC().Year() {
		return fmt.Errorf("%w: expired in %d", domain.ErrCertificateExpired, cert.ExpiryYear)
	}

	return checkBinding(cert, binding, caller)
}

func checkBinding(cert domain.Certificate, binding common.Hash, caller common.Address) error {
	if cert.Subject != caller {
		return fmt.Errorf("%w: certificate subject %s", domain.ErrOwnershipMismatch, cert.Subject.Hex())
	}
	if crypto.OwnershipBinding(cert, caller) != binding {
		return fmt.Errorf("%w: binding does not match caller", domain.ErrOwnershipMismatch)
	}
	return nil
}
