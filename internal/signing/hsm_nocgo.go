//go:build !cgo

package signing

import (
	"context"
	"crypto/x509"
	"fmt"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
)

// HSMConfig holds PKCS#11 configuration for one CA key.
// This stub is used when CGO is not available.
type HSMConfig struct {
	ModulePath string
	SlotID     uint
	PIN        string
	KeyLabel   string
	Algorithm  pkicrypto.AlgorithmID
	CertFile   string
}

// HSMAuthority is the non-CGO stub. All operations fail; HSM support
// requires building with CGO_ENABLED=1.
type HSMAuthority struct{}

var _ Authority = (*HSMAuthority)(nil)

var errNoCGO = fmt.Errorf("HSM support requires CGO (build with CGO_ENABLED=1)")

// NewHSMAuthority returns the stub authority.
func NewHSMAuthority(configs map[string]HSMConfig) *HSMAuthority {
	return &HSMAuthority{}
}

// Sign always fails without CGO.
func (a *HSMAuthority) Sign(ctx context.Context, caID string, payload []byte) (*Signature, error) {
	return nil, errNoCGO
}

// Issuer always fails without CGO.
func (a *HSMAuthority) Issuer(caID string) (*x509.Certificate, error) {
	return nil, errNoCGO
}

// Algorithm always fails without CGO.
func (a *HSMAuthority) Algorithm(caID string) (pkicrypto.AlgorithmID, error) {
	return "", errNoCGO
}

// Close is a no-op in the stub.
func (a *HSMAuthority) Close() {}
