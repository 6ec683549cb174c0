package distribution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/crl-engine/internal/crl"
	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
	"github.com/remiblancher/crl-engine/internal/signing"
	"github.com/remiblancher/crl-engine/internal/store"
)

func signedCRL(caID string) *crl.CRL {
	now := time.Now().UTC()
	return &crl.CRL{
		ID:                 uuid.New().String(),
		CAID:               caID,
		Number:             1,
		ThisUpdate:         now,
		NextUpdate:         now.Add(168 * time.Hour),
		SignatureAlgorithm: "ed25519",
		Signature:          []byte{1},
		Raw:                []byte{0x30, 0x03, 0x02, 0x01, 0x01},
		Signed:             true,
		Status:             crl.StatusActive,
	}
}

func TestDistributePartialFailure(t *testing.T) {
	var okCalls, failCalls atomic.Int32
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, contentTypeCRL, r.Header.Get("Content-Type"))
		okCalls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer okSrv.Close()
	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failSrv.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	c := signedCRL("ca1")
	require.NoError(t, st.SaveCRL(ctx, c))

	points := []*crl.DistributionPoint{
		{ID: "ok", CAID: "ca1", URL: okSrv.URL, Enabled: true, Priority: 1},
		{ID: "bad", CAID: "ca1", URL: failSrv.URL, Enabled: true, Priority: 2},
		{ID: "off", CAID: "ca1", URL: okSrv.URL, Enabled: false, Priority: 3},
	}
	for _, p := range points {
		require.NoError(t, st.SavePoint(ctx, p))
	}

	eng := &Engine{Store: st, Timeout: 2 * time.Second}
	res, err := eng.Distribute(ctx, c, points, 3)
	require.NoError(t, err, "partial failure is not an error")

	assert.Equal(t, 2, res.Attempted, "disabled points are skipped")
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Success, "any point failure makes the run unsuccessful")
	assert.Equal(t, int32(1), okCalls.Load())
	assert.Equal(t, int32(1), failCalls.Load())

	// The CRL stays active regardless of publish failures.
	active, err := st.ActiveCRL(ctx, "ca1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, active.ID)

	// The failed point remembers what to retry.
	bad, err := st.GetPoint(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, c.ID, bad.PendingCRLID)
	assert.Equal(t, int64(1), bad.FailureCount)

	ok, err := st.GetPoint(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ok.SuccessCount)
	assert.Empty(t, ok.PendingCRLID)
}

func TestDistributeHonorsPointTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	c := signedCRL("ca1")
	require.NoError(t, st.SaveCRL(ctx, c))

	points := []*crl.DistributionPoint{
		{ID: "slow", CAID: "ca1", URL: srv.URL, Enabled: true, Priority: 1, Timeout: 20 * time.Millisecond},
		{ID: "patient", CAID: "ca1", URL: srv.URL, Enabled: true, Priority: 2},
	}
	for _, p := range points {
		require.NoError(t, st.SavePoint(ctx, p))
	}

	// The point's own timeout wins over the engine default.
	eng := &Engine{Store: st, Timeout: 5 * time.Second}
	res, err := eng.Distribute(ctx, c, points, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	for _, r := range res.Results {
		if r.PointID == "slow" {
			assert.False(t, r.Success)
			assert.Contains(t, r.Error, "context deadline exceeded")
		} else {
			assert.True(t, r.Success)
		}
	}
}

func TestDistributeRefusesUnsigned(t *testing.T) {
	c := signedCRL("ca1")
	c.Signed = false
	c.Signature = nil

	eng := &Engine{Store: store.NewMemoryStore()}
	_, err := eng.Distribute(context.Background(), c, nil, 3)
	assert.ErrorIs(t, err, crl.ErrUnsigned)
}

func TestRetryFailed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	c := signedCRL("ca1")
	require.NoError(t, st.SaveCRL(ctx, c))
	p := &crl.DistributionPoint{ID: "p1", CAID: "ca1", URL: srv.URL, Enabled: true}
	require.NoError(t, st.SavePoint(ctx, p))

	eng := &Engine{Store: st, Timeout: 2 * time.Second}
	res, err := eng.Distribute(ctx, c, []*crl.DistributionPoint{p}, 3)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)

	retry, err := eng.RetryFailed(ctx, "ca1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Attempted)
	assert.Equal(t, 1, retry.Succeeded)
	assert.True(t, retry.Success)

	got, err := st.GetPoint(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, got.PendingCRLID)

	// Nothing pending: retry is a no-op.
	retry, err = eng.RetryFailed(ctx, "ca1", 3)
	require.NoError(t, err)
	assert.Zero(t, retry.Attempted)
}

func TestReceiptRoundTrip(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgECDSAP256)
	require.NoError(t, err)
	signer, err := pkicrypto.NewSoftwareSigner(kp)
	require.NoError(t, err)
	auth := &signing.StaticAuthority{CAID: "ca1", Signer: signer}

	rs := NewReceiptSigner(auth)
	require.NotNil(t, rs)

	c := signedCRL("ca1")
	c.Number = 9
	at := time.Now().UTC().Truncate(time.Second)
	data, err := rs.Sign(c, "https://crl.example.com/ca1.crl", at)
	require.NoError(t, err)

	receipt, err := VerifyReceipt(data, pkicrypto.AlgECDSAP256, signer.Public())
	require.NoError(t, err)
	assert.Equal(t, "ca1", receipt.CAID)
	assert.Equal(t, int64(9), receipt.Number)
	assert.Equal(t, "https://crl.example.com/ca1.crl", receipt.URL)

	// Tampered receipts fail verification.
	data[len(data)-1] ^= 0xff
	_, err = VerifyReceipt(data, pkicrypto.AlgECDSAP256, signer.Public())
	assert.Error(t, err)
}

func TestReceiptUnsupportedForPQC(t *testing.T) {
	_, err := coseAlgorithm(pkicrypto.AlgMLDSA65)
	assert.Error(t, err)
}
