package crl

import (
	"context"
	"fmt"
	"time"

	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
	"github.com/remiblancher/crl-engine/internal/signing"
)

// CRLGetter is the slice of store behavior the validator needs.
type CRLGetter interface {
	GetCRL(ctx context.Context, id string) (*CRL, error)
}

// Validator checks stored CRL artifacts. It accumulates every violation
// rather than stopping at the first, so one run reports the artifact's
// full state of health.
type Validator struct {
	Store CRLGetter
	Keys  signing.KeyProvider
	Clock func() time.Time
}

func (v *Validator) now() time.Time {
	if v.Clock != nil {
		return v.Clock().UTC()
	}
	return time.Now().UTC()
}

// Validate loads the CRL by ID and checks it. A missing CRL is an error
// return, not a validation result.
func (v *Validator) Validate(ctx context.Context, crlID string) (*ValidationResult, error) {
	c, err := v.Store.GetCRL(ctx, crlID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCRLNotFound, crlID)
	}
	return v.ValidateCRL(c), nil
}

// ValidateCRL checks a CRL artifact: structure, temporal sanity, signature
// and (when requested at generation) extension presence. Expiry is a
// warning; everything else found wrong is an error.
func (v *Validator) ValidateCRL(c *CRL) *ValidationResult {
	res := &ValidationResult{
		CRLID:      c.ID,
		Valid:      true,
		Issuer:     c.Issuer,
		Number:     c.Number,
		EntryCount: len(c.Entries),
		Status:     c.Status,
		ThisUpdate: c.ThisUpdate,
		NextUpdate: c.NextUpdate,
	}

	if !c.Signed {
		res.addError("artifact is not signed; unsigned CRLs must not be distributed")
	} else if len(c.Signature) == 0 {
		res.addError("marked signed but signature is empty")
	}

	now := v.now()
	if c.ThisUpdate.After(now) {
		res.addError(fmt.Sprintf("thisUpdate %s is in the future", c.ThisUpdate.Format(time.RFC3339)))
	}
	if !c.NextUpdate.After(c.ThisUpdate) {
		res.addError("nextUpdate does not follow thisUpdate")
	}
	if c.Expired(now) {
		res.addWarning(fmt.Sprintf("expired: nextUpdate %s has passed", c.NextUpdate.Format(time.RFC3339)))
	}

	if len(c.Raw) == 0 {
		res.addError("no DER artifact stored")
		return res
	}

	parsed, err := parseDER(c.Raw, c.Signed)
	if err != nil {
		res.addError(fmt.Sprintf("artifact does not parse: %v", err))
		return res
	}

	if parsed.EntryCount != len(c.Entries) {
		res.addError(fmt.Sprintf("artifact has %d entries, record has %d", parsed.EntryCount, len(c.Entries)))
	}

	if c.ExtensionsIncluded {
		if !parsed.hasExtension(OIDCRLNumber) {
			res.addError("CRL number extension missing")
		}
		if !parsed.hasExtension(OIDAuthorityKeyIdentifier) {
			res.addWarning("authority key identifier extension missing")
		}
	}

	if c.Signed && len(c.Signature) > 0 {
		v.verifySignature(c, parsed, res)
	}

	return res
}

func (v *Validator) verifySignature(c *CRL, parsed *parsedCRL, res *ValidationResult) {
	if v.Keys == nil {
		res.addWarning("issuer key unavailable; signature not verified")
		return
	}
	alg, err := pkicrypto.ParseAlgorithm(c.SignatureAlgorithm)
	if err != nil {
		res.addError(fmt.Sprintf("unknown signature algorithm %q", c.SignatureAlgorithm))
		return
	}
	pub, err := v.Keys.PublicKeyFor(c.CAID)
	if err != nil {
		res.addWarning(fmt.Sprintf("issuer key unavailable for CA %s; signature not verified", c.CAID))
		return
	}
	if err := pkicrypto.VerifySignature(pub, alg, parsed.TBSRaw, parsed.Signature); err != nil {
		res.addError(fmt.Sprintf("signature verification failed: %v", err))
	}
}
