package signing

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
)

// KeyMaterial locates a CA's key and certificate on disk.
type KeyMaterial struct {
	CertFile string
	KeyFile  string
}

// SoftwareAuthority implements Authority with PEM key files on disk.
// Keys are loaded lazily and cached for the life of the authority.
type SoftwareAuthority struct {
	mu       sync.Mutex
	material map[string]KeyMaterial
	signers  map[string]pkicrypto.Signer
	certs    map[string]*x509.Certificate
}

var _ Authority = (*SoftwareAuthority)(nil)
var _ CryptoSignerProvider = (*SoftwareAuthority)(nil)
var _ KeyProvider = (*SoftwareAuthority)(nil)

// NewSoftwareAuthority creates an authority over the given CA key material.
func NewSoftwareAuthority(material map[string]KeyMaterial) *SoftwareAuthority {
	return &SoftwareAuthority{
		material: material,
		signers:  make(map[string]pkicrypto.Signer),
		certs:    make(map[string]*x509.Certificate),
	}
}

// Register adds or replaces key material for a CA.
func (a *SoftwareAuthority) Register(caID string, m KeyMaterial) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.material[caID] = m
	delete(a.signers, caID)
	delete(a.certs, caID)
}

// Sign signs the payload with the CA's private key.
func (a *SoftwareAuthority) Sign(ctx context.Context, caID string, payload []byte) (*Signature, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	signer, err := a.signerFor(caID)
	if err != nil {
		return nil, err
	}

	sig, err := signer.SignMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("signing failed for CA %s: %w", caID, err)
	}

	alg := signer.Algorithm()
	return &Signature{
		Algorithm: alg,
		OID:       alg.SignatureOID(),
		Value:     sig,
	}, nil
}

// Issuer returns the CA certificate.
func (a *SoftwareAuthority) Issuer(caID string) (*x509.Certificate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cert, ok := a.certs[caID]; ok {
		return cert, nil
	}

	m, ok := a.material[caID]
	if !ok {
		return nil, fmt.Errorf("no key material registered for CA %s", caID)
	}

	cert, err := loadCertificate(m.CertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate for CA %s: %w", caID, err)
	}
	a.certs[caID] = cert
	return cert, nil
}

// Algorithm returns the signature algorithm of the CA's key.
func (a *SoftwareAuthority) Algorithm(caID string) (pkicrypto.AlgorithmID, error) {
	signer, err := a.signerFor(caID)
	if err != nil {
		return "", err
	}
	return signer.Algorithm(), nil
}

// PublicKeyFor returns the CA's public key.
func (a *SoftwareAuthority) PublicKeyFor(caID string) (crypto.PublicKey, error) {
	signer, err := a.signerFor(caID)
	if err != nil {
		return nil, err
	}
	return signer.Public(), nil
}

// CryptoSigner exposes the raw crypto.Signer for a CA.
func (a *SoftwareAuthority) CryptoSigner(caID string) (crypto.Signer, error) {
	return a.signerFor(caID)
}

func (a *SoftwareAuthority) signerFor(caID string) (pkicrypto.Signer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.signers[caID]; ok {
		return s, nil
	}

	m, ok := a.material[caID]
	if !ok {
		return nil, fmt.Errorf("no key material registered for CA %s", caID)
	}

	kp, err := pkicrypto.LoadPrivateKeyPEM(m.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key for CA %s: %w", caID, err)
	}
	signer, err := pkicrypto.NewSoftwareSigner(kp)
	if err != nil {
		return nil, err
	}
	a.signers[caID] = signer
	return signer, nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE PEM block in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

// StaticAuthority serves a single pre-loaded signer and certificate.
// Used by tests and by embedded setups where key material is created
// in-process.
type StaticAuthority struct {
	CAID   string
	Signer pkicrypto.Signer
	Cert   *x509.Certificate
}

var _ Authority = (*StaticAuthority)(nil)
var _ CryptoSignerProvider = (*StaticAuthority)(nil)
var _ KeyProvider = (*StaticAuthority)(nil)

// Sign signs the payload with the static signer.
func (a *StaticAuthority) Sign(ctx context.Context, caID string, payload []byte) (*Signature, error) {
	if caID != a.CAID {
		return nil, fmt.Errorf("no key material registered for CA %s", caID)
	}
	sig, err := a.Signer.SignMessage(payload)
	if err != nil {
		return nil, err
	}
	alg := a.Signer.Algorithm()
	return &Signature{Algorithm: alg, OID: alg.SignatureOID(), Value: sig}, nil
}

// Issuer returns the static certificate.
func (a *StaticAuthority) Issuer(caID string) (*x509.Certificate, error) {
	if caID != a.CAID {
		return nil, fmt.Errorf("no key material registered for CA %s", caID)
	}
	return a.Cert, nil
}

// Algorithm returns the static signer's algorithm.
func (a *StaticAuthority) Algorithm(caID string) (pkicrypto.AlgorithmID, error) {
	if caID != a.CAID {
		return "", fmt.Errorf("no key material registered for CA %s", caID)
	}
	return a.Signer.Algorithm(), nil
}

// PublicKeyFor returns the static signer's public key.
func (a *StaticAuthority) PublicKeyFor(caID string) (crypto.PublicKey, error) {
	if caID != a.CAID {
		return nil, fmt.Errorf("no key material registered for CA %s", caID)
	}
	return a.Signer.Public(), nil
}

// CryptoSigner returns the static signer.
func (a *StaticAuthority) CryptoSigner(caID string) (crypto.Signer, error) {
	if caID != a.CAID {
		return nil, fmt.Errorf("no key material registered for CA %s", caID)
	}
	return a.Signer, nil
}
