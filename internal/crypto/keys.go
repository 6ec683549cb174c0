package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// KeyPair holds a public/private key pair.
type KeyPair struct {
	Algorithm  AlgorithmID
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
}

// GenerateKeyPair generates a new key pair for the specified algorithm.
func GenerateKeyPair(alg AlgorithmID) (*KeyPair, error) {
	return GenerateKeyPairWithRand(rand.Reader, alg)
}

// GenerateKeyPairWithRand generates a key pair using the provided random
// source. Useful for deterministic tests.
func GenerateKeyPairWithRand(random io.Reader, alg AlgorithmID) (*KeyPair, error) {
	if !alg.IsValid() {
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}

	var priv crypto.PrivateKey
	var pub crypto.PublicKey
	var err error

	switch alg {
	case AlgECDSAP256:
		priv, pub, err = generateECDSA(random, elliptic.P256())
	case AlgECDSAP384:
		priv, pub, err = generateECDSA(random, elliptic.P384())
	case AlgEd25519:
		pub, priv, err = ed25519.GenerateKey(random)
	case AlgRSA2048:
		priv, pub, err = generateRSA(random, 2048)
	case AlgRSA4096:
		priv, pub, err = generateRSA(random, 4096)
	case AlgMLDSA44:
		pub, priv, err = mldsa44.GenerateKey(random)
	case AlgMLDSA65:
		pub, priv, err = mldsa65.GenerateKey(random)
	case AlgMLDSA87:
		pub, priv, err = mldsa87.GenerateKey(random)
	default:
		return nil, fmt.Errorf("key generation not implemented for: %s", alg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}

	return &KeyPair{
		Algorithm:  alg,
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

func generateECDSA(random io.Reader, curve elliptic.Curve) (crypto.PrivateKey, crypto.PublicKey, error) {
	priv, err := ecdsa.GenerateKey(curve, random)
	if err != nil {
		return nil, nil, err
	}
	return priv, &priv.PublicKey, nil
}

func generateRSA(random io.Reader, bits int) (crypto.PrivateKey, crypto.PublicKey, error) {
	priv, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, nil, err
	}
	return priv, &priv.PublicKey, nil
}

// SavePrivateKeyPEM writes a private key to a PEM file. Classical keys use
// PKCS#8; ML-DSA keys use their binary encoding under an algorithm-specific
// PEM type.
func SavePrivateKeyPEM(path string, kp *KeyPair) error {
	var pemBlock *pem.Block

	switch priv := kp.PrivateKey.(type) {
	case *ecdsa.PrivateKey, ed25519.PrivateKey, *rsa.PrivateKey:
		der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to marshal private key: %w", err)
		}
		pemBlock = &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	case *mldsa44.PrivateKey:
		pemBlock = &pem.Block{Type: "ML-DSA-44 PRIVATE KEY", Bytes: priv.Bytes()}
	case *mldsa65.PrivateKey:
		pemBlock = &pem.Block{Type: "ML-DSA-65 PRIVATE KEY", Bytes: priv.Bytes()}
	case *mldsa87.PrivateKey:
		pemBlock = &pem.Block{Type: "ML-DSA-87 PRIVATE KEY", Bytes: priv.Bytes()}

	default:
		return fmt.Errorf("unsupported private key type: %T", kp.PrivateKey)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()

	if err := pem.Encode(f, pemBlock); err != nil {
		return fmt.Errorf("failed to write PEM: %w", err)
	}
	return nil
}

// LoadPrivateKeyPEM loads a private key from a PEM file.
func LoadPrivateKeyPEM(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	switch block.Type {
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		alg, pub := classicalKeyInfo(priv)
		if alg == "" {
			return nil, fmt.Errorf("unsupported key type in %s", path)
		}
		return &KeyPair{Algorithm: alg, PrivateKey: priv, PublicKey: pub}, nil

	case "EC PRIVATE KEY":
		priv, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC key: %w", err)
		}
		alg, pub := classicalKeyInfo(priv)
		if alg == "" {
			return nil, fmt.Errorf("unsupported key type in %s", path)
		}
		return &KeyPair{Algorithm: alg, PrivateKey: priv, PublicKey: pub}, nil

	case "ML-DSA-44 PRIVATE KEY":
		var mlPriv mldsa44.PrivateKey
		if err := mlPriv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 key: %w", err)
		}
		return &KeyPair{Algorithm: AlgMLDSA44, PrivateKey: &mlPriv, PublicKey: mlPriv.Public()}, nil

	case "ML-DSA-65 PRIVATE KEY":
		var mlPriv mldsa65.PrivateKey
		if err := mlPriv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 key: %w", err)
		}
		return &KeyPair{Algorithm: AlgMLDSA65, PrivateKey: &mlPriv, PublicKey: mlPriv.Public()}, nil

	case "ML-DSA-87 PRIVATE KEY":
		var mlPriv mldsa87.PrivateKey
		if err := mlPriv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 key: %w", err)
		}
		return &KeyPair{Algorithm: AlgMLDSA87, PrivateKey: &mlPriv, PublicKey: mlPriv.Public()}, nil

	default:
		return nil, fmt.Errorf("unknown PEM type: %s", block.Type)
	}
}

// classicalKeyInfo returns the algorithm and public key for a classical
// private key.
func classicalKeyInfo(priv crypto.PrivateKey) (AlgorithmID, crypto.PublicKey) {
	switch k := priv.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return AlgECDSAP256, &k.PublicKey
		case 384:
			return AlgECDSAP384, &k.PublicKey
		}
	case ed25519.PrivateKey:
		return AlgEd25519, k.Public()
	case *rsa.PrivateKey:
		if k.N.BitLen() <= 2048 {
			return AlgRSA2048, &k.PublicKey
		}
		return AlgRSA4096, &k.PublicKey
	}
	return "", nil
}
