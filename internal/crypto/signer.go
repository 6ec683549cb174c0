package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// Signer extends crypto.Signer with algorithm metadata and a message-level
// signing operation that applies the algorithm's pre-hash internally.
type Signer interface {
	crypto.Signer

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() AlgorithmID

	// SignMessage signs a full message, hashing it first when the
	// algorithm requires a digest (ECDSA, RSA). Ed25519 and ML-DSA sign
	// the message directly.
	SignMessage(message []byte) ([]byte, error)
}

// SoftwareSigner implements Signer with an in-memory private key.
type SoftwareSigner struct {
	alg  AlgorithmID
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

var _ Signer = (*SoftwareSigner)(nil)

// NewSoftwareSigner creates a SoftwareSigner from a key pair.
func NewSoftwareSigner(kp *KeyPair) (*SoftwareSigner, error) {
	if kp == nil {
		return nil, fmt.Errorf("key pair is nil")
	}
	return &SoftwareSigner{alg: kp.Algorithm, priv: kp.PrivateKey, pub: kp.PublicKey}, nil
}

// GenerateSoftwareSigner generates a new key pair and wraps it in a signer.
func GenerateSoftwareSigner(alg AlgorithmID) (*SoftwareSigner, error) {
	kp, err := GenerateKeyPair(alg)
	if err != nil {
		return nil, err
	}
	return NewSoftwareSigner(kp)
}

// Algorithm returns the algorithm used by this signer.
func (s *SoftwareSigner) Algorithm() AlgorithmID {
	return s.alg
}

// Public returns the public key.
func (s *SoftwareSigner) Public() crypto.PublicKey {
	return s.pub
}

// Sign implements crypto.Signer. For ECDSA and RSA, digest must be the hash
// of the message; Ed25519 and ML-DSA expect the full message.
func (s *SoftwareSigner) Sign(random io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	switch priv := s.priv.(type) {
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(random, priv, digest)

	case ed25519.PrivateKey:
		return ed25519.Sign(priv, digest), nil

	case *rsa.PrivateKey:
		if pssOpts, ok := opts.(*rsa.PSSOptions); ok {
			return rsa.SignPSS(random, priv, pssOpts.Hash, digest, pssOpts)
		}
		hash := crypto.SHA256
		if opts != nil && opts.HashFunc() != 0 {
			hash = opts.HashFunc()
		}
		return rsa.SignPKCS1v15(random, priv, hash, digest)

	case *mldsa44.PrivateKey:
		// ML-DSA (FIPS 204) signs the full message; Hash(0) selects pure mode.
		return priv.Sign(random, digest, crypto.Hash(0))
	case *mldsa65.PrivateKey:
		return priv.Sign(random, digest, crypto.Hash(0))
	case *mldsa87.PrivateKey:
		return priv.Sign(random, digest, crypto.Hash(0))

	default:
		return nil, fmt.Errorf("unsupported private key type: %T", priv)
	}
}

// SignMessage signs a full message, applying the algorithm's pre-hash.
func (s *SoftwareSigner) SignMessage(message []byte) ([]byte, error) {
	input := message
	if h := s.alg.Hash(); h != 0 {
		hh := h.New()
		hh.Write(message)
		input = hh.Sum(nil)
		return s.Sign(rand.Reader, input, h)
	}
	return s.Sign(rand.Reader, input, crypto.Hash(0))
}

// Verify verifies a signature over a full message. The pre-hash for ECDSA
// and RSA is applied internally, mirroring SignMessage.
func Verify(alg AlgorithmID, pub crypto.PublicKey, message, signature []byte) bool {
	input := message
	if h := alg.Hash(); h != 0 {
		hh := h.New()
		hh.Write(message)
		input = hh.Sum(nil)
	}

	switch alg {
	case AlgECDSAP256, AlgECDSAP384:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		return ecdsa.VerifyASN1(ecPub, input, signature)

	case AlgEd25519:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return false
		}
		return ed25519.Verify(edPub, message, signature)

	case AlgRSA2048, AlgRSA4096:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		return rsa.VerifyPKCS1v15(rsaPub, alg.Hash(), input, signature) == nil

	case AlgMLDSA44:
		mlPub, ok := pub.(*mldsa44.PublicKey)
		if !ok {
			return false
		}
		return mldsa44.Verify(mlPub, message, nil, signature)

	case AlgMLDSA65:
		mlPub, ok := pub.(*mldsa65.PublicKey)
		if !ok {
			return false
		}
		return mldsa65.Verify(mlPub, message, nil, signature)

	case AlgMLDSA87:
		mlPub, ok := pub.(*mldsa87.PublicKey)
		if !ok {
			return false
		}
		return mldsa87.Verify(mlPub, message, nil, signature)

	default:
		return false
	}
}

// VerifySignature is a convenience wrapper around Verify that returns an
// error instead of a bool.
func VerifySignature(pub crypto.PublicKey, alg AlgorithmID, message, signature []byte) error {
	if !Verify(alg, pub, message, signature) {
		return fmt.Errorf("signature verification failed for algorithm %s", alg)
	}
	return nil
}

// PublicKeyAlgorithm infers the AlgorithmID from a public key.
func PublicKeyAlgorithm(pub crypto.PublicKey) (AlgorithmID, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return AlgECDSAP256, nil
		case 384:
			return AlgECDSAP384, nil
		}
		return "", fmt.Errorf("unsupported ECDSA curve: %s", k.Curve.Params().Name)
	case ed25519.PublicKey:
		return AlgEd25519, nil
	case *rsa.PublicKey:
		if k.N.BitLen() <= 2048 {
			return AlgRSA2048, nil
		}
		return AlgRSA4096, nil
	case *mldsa44.PublicKey:
		return AlgMLDSA44, nil
	case *mldsa65.PublicKey:
		return AlgMLDSA65, nil
	case *mldsa87.PublicKey:
		return AlgMLDSA87, nil
	default:
		return "", fmt.Errorf("unsupported public key type: %T", pub)
	}
}
