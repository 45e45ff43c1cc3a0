package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

func TestVerifyAndBind(t *testing.T) {
	env := newTestEnv(t, 100)
	now := env.clock.Now()

	rogue, err := crypto.GenerateSigner()
	require.NoError(t, err)

	good := env.newBidder()
	untrusted := certify(t, rogue, 2099)
	expired := certify(t, env.authority, uint16(now.Year()-1))
	current := certify(t, env.authority, uint16(now.Year()))
	other := env.newBidder()

	forged := good.cert
	forged.Authority = rogue.Address()

	foreignPossession := good.cert
	foreignPossession.PossessionSig = other.cert.PossessionSig

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"valid", func() error {
			return VerifyAndBind(env.reg, now, good.cert, good.authSig, good.binding, good.addr())
		}, nil},
		{"valid through expiry year", func() error {
			return VerifyAndBind(env.reg, now, current.cert, current.authSig, current.binding, current.addr())
		}, nil},
		{"unregistered authority", func() error {
			return VerifyAndBind(env.reg, now, untrusted.cert, untrusted.authSig, untrusted.binding, untrusted.addr())
		}, domain.ErrAuthorizationFailure},
		{"authority field rewritten", func() error {
			return VerifyAndBind(env.reg, now, forged, good.authSig, good.binding, good.addr())
		}, domain.ErrAuthorizationFailure},
		{"malformed signature", func() error {
			return VerifyAndBind(env.reg, now, good.cert, []byte{1}, good.binding, good.addr())
		}, domain.ErrAuthorizationFailure},
		{"foreign possession proof", func() error {
			return VerifyAndBind(env.reg, now, foreignPossession, good.authSig, good.binding, good.addr())
		}, domain.ErrAuthorizationFailure},
		{"expired", func() error {
			return VerifyAndBind(env.reg, now, expired.cert, expired.authSig, expired.binding, expired.addr())
		}, domain.ErrCertificateExpired},
		{"presented by another caller", func() error {
			return VerifyAndBind(env.reg, now, good.cert, good.authSig, good.binding, other.addr())
		}, domain.ErrOwnershipMismatch},
		{"binding recomputed for another caller", func() error {
			b := crypto.OwnershipBinding(good.cert, other.addr())
			return VerifyAndBind(env.reg, now, good.cert, good.authSig, b, other.addr())
		}, domain.ErrOwnershipMismatch},
		{"wrong binding", func() error {
			return VerifyAndBind(env.reg, now, good.cert, good.authSig, other.binding, good.addr())
		}, domain.ErrOwnershipMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestPhaseAt(t *testing.T) {
	s := domain.Schedule{Start: testStart, Bidding: time.Hour, Reveal: time.Hour, Claim: time.Hour}

	assert.Equal(t, domain.PhaseBidding, PhaseAt(testStart, s))
	assert.Equal(t, domain.PhaseBidding, PhaseAt(s.BiddingEnds().Add(-time.Nanosecond), s))
	assert.Equal(t, domain.PhaseReveal, PhaseAt(s.BiddingEnds(), s))
	assert.Equal(t, domain.PhaseClaim, PhaseAt(s.RevealEnds(), s))
	assert.Equal(t, domain.PhaseClaim, PhaseAt(s.ClaimEnds().Add(24*time.Hour), s))
}
