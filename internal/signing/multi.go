package signing

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
)

// MultiAuthority routes each CA to its backing authority, letting
// software-key and HSM-backed CAs coexist in one engine.
type MultiAuthority struct {
	authorities map[string]Authority
}

var _ Authority = (*MultiAuthority)(nil)
var _ KeyProvider = (*MultiAuthority)(nil)
var _ CryptoSignerProvider = (*MultiAuthority)(nil)

// NewMultiAuthority creates a router over per-CA authorities.
func NewMultiAuthority(authorities map[string]Authority) *MultiAuthority {
	return &MultiAuthority{authorities: authorities}
}

func (a *MultiAuthority) authorityFor(caID string) (Authority, error) {
	auth, ok := a.authorities[caID]
	if !ok {
		return nil, fmt.Errorf("no key material registered for CA %s", caID)
	}
	return auth, nil
}

// Sign delegates to the CA's authority.
func (a *MultiAuthority) Sign(ctx context.Context, caID string, payload []byte) (*Signature, error) {
	auth, err := a.authorityFor(caID)
	if err != nil {
		return nil, err
	}
	return auth.Sign(ctx, caID, payload)
}

// Issuer delegates to the CA's authority.
func (a *MultiAuthority) Issuer(caID string) (*x509.Certificate, error) {
	auth, err := a.authorityFor(caID)
	if err != nil {
		return nil, err
	}
	return auth.Issuer(caID)
}

// Algorithm delegates to the CA's authority.
func (a *MultiAuthority) Algorithm(caID string) (pkicrypto.AlgorithmID, error) {
	auth, err := a.authorityFor(caID)
	if err != nil {
		return "", err
	}
	return auth.Algorithm(caID)
}

// PublicKeyFor delegates when the backing authority supports it.
func (a *MultiAuthority) PublicKeyFor(caID string) (crypto.PublicKey, error) {
	auth, err := a.authorityFor(caID)
	if err != nil {
		return nil, err
	}
	kp, ok := auth.(KeyProvider)
	if !ok {
		return nil, fmt.Errorf("authority for CA %s does not expose public keys", caID)
	}
	return kp.PublicKeyFor(caID)
}

// CryptoSigner delegates when the backing authority supports it.
func (a *MultiAuthority) CryptoSigner(caID string) (crypto.Signer, error) {
	auth, err := a.authorityFor(caID)
	if err != nil {
		return nil, err
	}
	cs, ok := auth.(CryptoSignerProvider)
	if !ok {
		return nil, fmt.Errorf("authority for CA %s does not expose a crypto.Signer", caID)
	}
	return cs.CryptoSigner(caID)
}
