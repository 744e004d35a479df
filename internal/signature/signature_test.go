package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-webhook-secret"

func TestSign_MatchesHMACOverTimestampAndPayload(t *testing.T) {
	payload := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)
	ts := "1700000000000"

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(ts + string(payload)))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign([]byte(testSecret), ts, payload))
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"data":{"order":{"order_id":"TFZ-u1-1","order_amount":500}}}`)
	ts := "1700000000000"
	valid := Sign([]byte(testSecret), ts, payload)

	tests := []struct {
		name      string
		secret    string
		timestamp string
		payload   []byte
		sig       string
		wantErr   error
	}{
		{name: "valid", secret: testSecret, timestamp: ts, payload: payload, sig: valid},
		{name: "missing signature", secret: testSecret, timestamp: ts, payload: payload, sig: "", wantErr: ErrMissingHeaders},
		{name: "missing timestamp", secret: testSecret, timestamp: "", payload: payload, sig: valid, wantErr: ErrMissingHeaders},
		{name: "wrong secret", secret: "other", timestamp: ts, payload: payload, sig: valid, wantErr: ErrInvalidSignature},
		{name: "empty secret", secret: "", timestamp: ts, payload: payload, sig: valid, wantErr: ErrInvalidSignature},
		{name: "changed timestamp", secret: testSecret, timestamp: "1700000000001", payload: payload, sig: valid, wantErr: ErrInvalidSignature},
		{name: "garbage signature", secret: testSecret, timestamp: ts, payload: payload, sig: "not-base64", wantErr: ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewVerifier(tt.secret).Verify(tt.timestamp, tt.payload, tt.sig)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerify_AnySingleByteChangeRejected(t *testing.T) {
	payload := []byte(`{"data":{"order":{"order_id":"TFZ-u1-1","order_status":"PAID"}}}`)
	ts := "1700000000000"
	sig := Sign([]byte(testSecret), ts, payload)
	v := NewVerifier(testSecret)

	require.NoError(t, v.Verify(ts, payload, sig))

	for i := range payload {
		tampered := append([]byte(nil), payload...)
		tampered[i] ^= 0x01
		assert.ErrorIs(t, v.Verify(ts, tampered, sig), ErrInvalidSignature, "byte %d", i)
	}

	for i := range ts {
		tampered := []byte(ts)
		tampered[i] ^= 0x01
		assert.ErrorIs(t, v.Verify(string(tampered), payload, sig), ErrInvalidSignature, "timestamp byte %d", i)
	}
}

func TestVerify_Tolerance(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{}`)

	v := NewVerifier(testSecret,
		WithTolerance(5*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	fresh := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)
	require.NoError(t, v.Verify(fresh, payload, Sign([]byte(testSecret), fresh, payload)))

	freshSeconds := strconv.FormatInt(now.Add(time.Minute).Unix(), 10)
	require.NoError(t, v.Verify(freshSeconds, payload, Sign([]byte(testSecret), freshSeconds, payload)))

	stale := strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)
	assert.ErrorIs(t, v.Verify(stale, payload, Sign([]byte(testSecret), stale, payload)), ErrStaleTimestamp)

	assert.ErrorIs(t, v.Verify("yesterday", payload, Sign([]byte(testSecret), "yesterday", payload)), ErrStaleTimestamp)
}
