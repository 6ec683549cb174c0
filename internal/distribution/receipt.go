package distribution

import (
	"crypto"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veraison/go-cose"

	"github.com/remiblancher/crl-engine/internal/crl"
	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
	"github.com/remiblancher/crl-engine/internal/signing"
)

// Receipt is the payload of a COSE_Sign1 publication receipt: a signed
// statement that a given CRL was published at a given point.
type Receipt struct {
	CAID        string    `json:"ca_id"`
	CRLID       string    `json:"crl_id"`
	Number      int64     `json:"number"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// ReceiptSigner signs publication receipts with the CA's own key.
// Only classical algorithms have COSE identifiers; CAs signing with
// ML-DSA publish without receipts.
type ReceiptSigner struct {
	Provider signing.CryptoSignerProvider
	// AlgorithmFor maps a CA to its signing algorithm.
	Authority signing.Authority
}

// NewReceiptSigner creates a receipt signer over the authority when it can
// expose raw crypto.Signers; returns nil otherwise.
func NewReceiptSigner(auth signing.Authority) *ReceiptSigner {
	provider, ok := auth.(signing.CryptoSignerProvider)
	if !ok {
		return nil
	}
	return &ReceiptSigner{Provider: provider, Authority: auth}
}

// coseAlgorithm maps an engine algorithm to its COSE identifier.
func coseAlgorithm(alg pkicrypto.AlgorithmID) (cose.Algorithm, error) {
	switch alg {
	case pkicrypto.AlgECDSAP256:
		return cose.AlgorithmES256, nil
	case pkicrypto.AlgECDSAP384:
		return cose.AlgorithmES384, nil
	case pkicrypto.AlgEd25519:
		return cose.AlgorithmEdDSA, nil
	case pkicrypto.AlgRSA2048, pkicrypto.AlgRSA4096:
		return cose.AlgorithmPS256, nil
	default:
		return 0, fmt.Errorf("algorithm %s has no COSE identifier", alg)
	}
}

// Sign produces a COSE_Sign1 receipt for a successful publication.
func (r *ReceiptSigner) Sign(c *crl.CRL, url string, at time.Time) ([]byte, error) {
	alg, err := r.Authority.Algorithm(c.CAID)
	if err != nil {
		return nil, err
	}
	coseAlg, err := coseAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	cryptoSigner, err := r.Provider.CryptoSigner(c.CAID)
	if err != nil {
		return nil, err
	}
	signer, err := cose.NewSigner(coseAlg, cryptoSigner)
	if err != nil {
		return nil, fmt.Errorf("create COSE signer: %w", err)
	}

	payload, err := json.Marshal(Receipt{
		CAID:        c.CAID,
		CRLID:       c.ID,
		Number:      c.Number,
		URL:         url,
		PublishedAt: at,
	})
	if err != nil {
		return nil, err
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(coseAlg)
	msg.Headers.Protected[cose.HeaderLabelContentType] = "application/json"
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}
	return msg.MarshalCBOR()
}

// VerifyReceipt checks a COSE_Sign1 receipt against the CA public key and
// returns the decoded payload.
func VerifyReceipt(data []byte, alg pkicrypto.AlgorithmID, pub crypto.PublicKey) (*Receipt, error) {
	coseAlg, err := coseAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	verifier, err := cose.NewVerifier(coseAlg, pub)
	if err != nil {
		return nil, fmt.Errorf("create COSE verifier: %w", err)
	}

	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("verify receipt: %w", err)
	}

	var receipt Receipt
	if err := json.Unmarshal(msg.Payload, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	return &receipt, nil
}
