//go:build cgo

package signing

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sync"

	"github.com/miekg/pkcs11"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
)

// HSMConfig holds PKCS#11 configuration for one CA key.
type HSMConfig struct {
	// ModulePath is the path to the PKCS#11 module (.so/.dylib/.dll).
	ModulePath string
	SlotID     uint
	PIN        string
	// KeyLabel is the CKA_LABEL of the private key.
	KeyLabel string
	// Algorithm the key was generated with. PKCS#11 does not expose this
	// reliably for all tokens, so it is configured explicitly.
	Algorithm pkicrypto.AlgorithmID
	// CertFile is the CA certificate on disk; PKCS#11 holds only the key.
	CertFile string
}

// HSMAuthority implements Authority against a PKCS#11 token. Only classical
// mechanisms are supported; tokens with ML-DSA support are not yet common
// enough to target.
type HSMAuthority struct {
	mu      sync.Mutex
	configs map[string]HSMConfig
	ctxs    map[string]*pkcs11.Ctx
	certs   map[string]*x509.Certificate
}

var _ Authority = (*HSMAuthority)(nil)

// NewHSMAuthority creates an authority over PKCS#11-backed CA keys.
func NewHSMAuthority(configs map[string]HSMConfig) *HSMAuthority {
	return &HSMAuthority{
		configs: configs,
		ctxs:    make(map[string]*pkcs11.Ctx),
		certs:   make(map[string]*x509.Certificate),
	}
}

// Sign signs the payload using the token.
func (a *HSMAuthority) Sign(ctx context.Context, caID string, payload []byte) (*Signature, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cfg, ok := a.config(caID)
	if !ok {
		return nil, fmt.Errorf("no HSM configuration for CA %s", caID)
	}

	p, err := a.module(caID, cfg)
	if err != nil {
		return nil, err
	}

	session, err := p.OpenSession(cfg.SlotID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return nil, fmt.Errorf("failed to open PKCS#11 session: %w", err)
	}
	defer p.CloseSession(session)

	if err := p.Login(session, pkcs11.CKU_USER, cfg.PIN); err != nil {
		if p11err, ok := err.(pkcs11.Error); !ok || p11err != pkcs11.CKR_USER_ALREADY_LOGGED_IN {
			return nil, fmt.Errorf("PKCS#11 login failed: %w", err)
		}
	}

	key, err := findPrivateKey(p, session, cfg.KeyLabel)
	if err != nil {
		return nil, err
	}

	mech, input, err := mechanismFor(cfg.Algorithm, payload)
	if err != nil {
		return nil, err
	}

	if err := p.SignInit(session, []*pkcs11.Mechanism{mech}, key); err != nil {
		return nil, fmt.Errorf("C_SignInit failed: %w", err)
	}
	raw, err := p.Sign(session, input)
	if err != nil {
		return nil, fmt.Errorf("C_Sign failed: %w", err)
	}

	sig, err := normalizeSignature(cfg.Algorithm, raw)
	if err != nil {
		return nil, err
	}

	return &Signature{
		Algorithm: cfg.Algorithm,
		OID:       cfg.Algorithm.SignatureOID(),
		Value:     sig,
	}, nil
}

// Issuer returns the CA certificate from disk.
func (a *HSMAuthority) Issuer(caID string) (*x509.Certificate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cert, ok := a.certs[caID]; ok {
		return cert, nil
	}
	cfg, ok := a.configs[caID]
	if !ok {
		return nil, fmt.Errorf("no HSM configuration for CA %s", caID)
	}
	cert, err := loadCertificate(cfg.CertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate for CA %s: %w", caID, err)
	}
	a.certs[caID] = cert
	return cert, nil
}

// Algorithm returns the configured algorithm for the CA key.
func (a *HSMAuthority) Algorithm(caID string) (pkicrypto.AlgorithmID, error) {
	cfg, ok := a.config(caID)
	if !ok {
		return "", fmt.Errorf("no HSM configuration for CA %s", caID)
	}
	return cfg.Algorithm, nil
}

// PublicKeyFor returns the public key from the CA certificate.
func (a *HSMAuthority) PublicKeyFor(caID string) (crypto.PublicKey, error) {
	cert, err := a.Issuer(caID)
	if err != nil {
		return nil, err
	}
	return cert.PublicKey, nil
}

// Close finalizes all loaded PKCS#11 modules.
func (a *HSMAuthority) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, ctx := range a.ctxs {
		_ = ctx.Finalize()
		ctx.Destroy()
		delete(a.ctxs, key)
	}
}

func (a *HSMAuthority) config(caID string) (HSMConfig, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg, ok := a.configs[caID]
	return cfg, ok
}

func (a *HSMAuthority) module(caID string, cfg HSMConfig) (*pkcs11.Ctx, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.ctxs[caID]; ok {
		return p, nil
	}

	p := pkcs11.New(cfg.ModulePath)
	if p == nil {
		return nil, fmt.Errorf("failed to load PKCS#11 module: %s", cfg.ModulePath)
	}
	if err := p.Initialize(); err != nil {
		if p11err, ok := err.(pkcs11.Error); !ok || p11err != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			p.Destroy()
			return nil, fmt.Errorf("failed to initialize PKCS#11 module: %w", err)
		}
	}
	a.ctxs[caID] = p
	return p, nil
}

func findPrivateKey(p *pkcs11.Ctx, session pkcs11.SessionHandle, label string) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	if err := p.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("C_FindObjectsInit failed: %w", err)
	}
	objs, _, err := p.FindObjects(session, 1)
	if ferr := p.FindObjectsFinal(session); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return 0, fmt.Errorf("C_FindObjects failed: %w", err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("private key %q not found on token", label)
	}
	return objs[0], nil
}

// mechanismFor maps an algorithm to a PKCS#11 mechanism and prepares the
// signing input (pre-hashed for raw ECDSA).
func mechanismFor(alg pkicrypto.AlgorithmID, payload []byte) (*pkcs11.Mechanism, []byte, error) {
	switch alg {
	case pkicrypto.AlgECDSAP256, pkicrypto.AlgECDSAP384:
		h := alg.Hash().New()
		h.Write(payload)
		return pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil), h.Sum(nil), nil
	case pkicrypto.AlgRSA2048, pkicrypto.AlgRSA4096:
		return pkcs11.NewMechanism(pkcs11.CKM_SHA256_RSA_PKCS, nil), payload, nil
	case pkicrypto.AlgEd25519:
		return pkcs11.NewMechanism(pkcs11.CKM_EDDSA, nil), payload, nil
	default:
		return nil, nil, fmt.Errorf("algorithm %s not supported via PKCS#11", alg)
	}
}

// normalizeSignature converts token output to the encoding the rest of the
// engine expects. PKCS#11 returns raw r||s for ECDSA; X.509 wants ASN.1.
func normalizeSignature(alg pkicrypto.AlgorithmID, raw []byte) ([]byte, error) {
	switch alg {
	case pkicrypto.AlgECDSAP256, pkicrypto.AlgECDSAP384:
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("unexpected ECDSA signature length %d", len(raw))
		}
		half := len(raw) / 2
		r := new(big.Int).SetBytes(raw[:half])
		s := new(big.Int).SetBytes(raw[half:])
		return asn1.Marshal(struct {
			R, S *big.Int
		}{r, s})
	default:
		return raw, nil
	}
}
