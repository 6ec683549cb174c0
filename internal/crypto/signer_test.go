package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestSignMessageAndVerify(t *testing.T) {
	algs := []AlgorithmID{AlgECDSAP256, AlgECDSAP384, AlgEd25519, AlgMLDSA44, AlgMLDSA65}

	for _, alg := range algs {
		t.Run(alg.String(), func(t *testing.T) {
			signer, err := GenerateSoftwareSigner(alg)
			if err != nil {
				t.Fatalf("GenerateSoftwareSigner(%s) error = %v", alg, err)
			}

			message := []byte("to-be-signed CRL payload")
			sig, err := signer.SignMessage(message)
			if err != nil {
				t.Fatalf("SignMessage() error = %v", err)
			}

			if !Verify(alg, signer.Public(), message, sig) {
				t.Errorf("Verify() = false, want true")
			}

			tampered := append([]byte{}, message...)
			tampered[0] ^= 0xFF
			if Verify(alg, signer.Public(), tampered, sig) {
				t.Errorf("Verify() on tampered message = true, want false")
			}
		})
	}
}

func TestKeyPEMRoundTrip(t *testing.T) {
	algs := []AlgorithmID{AlgECDSAP256, AlgEd25519, AlgMLDSA65}

	for _, alg := range algs {
		t.Run(alg.String(), func(t *testing.T) {
			kp, err := GenerateKeyPair(alg)
			if err != nil {
				t.Fatalf("GenerateKeyPair() error = %v", err)
			}

			path := filepath.Join(t.TempDir(), "key.pem")
			if err := SavePrivateKeyPEM(path, kp); err != nil {
				t.Fatalf("SavePrivateKeyPEM() error = %v", err)
			}

			loaded, err := LoadPrivateKeyPEM(path)
			if err != nil {
				t.Fatalf("LoadPrivateKeyPEM() error = %v", err)
			}
			if loaded.Algorithm != alg {
				t.Errorf("loaded algorithm = %s, want %s", loaded.Algorithm, alg)
			}

			// Key loaded from disk must produce verifiable signatures.
			signer, err := NewSoftwareSigner(loaded)
			if err != nil {
				t.Fatalf("NewSoftwareSigner() error = %v", err)
			}
			msg := []byte("round trip")
			sig, err := signer.SignMessage(msg)
			if err != nil {
				t.Fatalf("SignMessage() error = %v", err)
			}
			if !Verify(alg, kp.PublicKey, msg, sig) {
				t.Errorf("signature from reloaded key does not verify against original public key")
			}
		})
	}
}

func TestLoadPrivateKeyPEMRejectsUnsupportedCurve(t *testing.T) {
	// P-521 is not in the supported algorithm set; loading such a key
	// must fail for both PEM encodings rather than yield a pair with an
	// empty algorithm.
	key, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	sec1, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey() error = %v", err)
	}

	cases := []struct {
		name    string
		pemType string
		der     []byte
	}{
		{"sec1", "EC PRIVATE KEY", sec1},
		{"pkcs8", "PRIVATE KEY", pkcs8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "key.pem")
			data := pem.EncodeToMemory(&pem.Block{Type: tc.pemType, Bytes: tc.der})
			if err := os.WriteFile(path, data, 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := LoadPrivateKeyPEM(path); err == nil {
				t.Errorf("LoadPrivateKeyPEM() error = nil, want unsupported key type error")
			}
		})
	}
}

func TestAlgorithmFromSignatureOID(t *testing.T) {
	for _, alg := range []AlgorithmID{AlgECDSAP256, AlgEd25519, AlgMLDSA87} {
		got, err := AlgorithmFromSignatureOID(alg.SignatureOID())
		if err != nil {
			t.Fatalf("AlgorithmFromSignatureOID(%s) error = %v", alg, err)
		}
		if got != alg {
			t.Errorf("AlgorithmFromSignatureOID(%s) = %s", alg, got)
		}
	}
}

func TestParseAlgorithm_Unknown(t *testing.T) {
	if _, err := ParseAlgorithm("rot13"); err == nil {
		t.Error("ParseAlgorithm(rot13) expected error")
	}
}
