// Package signature реализует подпись и проверку уведомлений платёжного шлюза.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"time"
)

var (
	// ErrMissingHeaders возвращается, если в уведомлении нет подписи или метки времени.
	ErrMissingHeaders = errors.New("missing signature headers")
	// ErrInvalidSignature возвращается, если подпись не совпала с ожидаемой.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrStaleTimestamp возвращается, если метка времени вышла за допустимое окно.
	ErrStaleTimestamp = errors.New("stale webhook timestamp")
)

// Sign вычисляет base64(HMAC-SHA256(secret, timestamp || payload)).
func Sign(secret []byte, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verifier проверяет подписи уведомлений общим секретом шлюза.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// Option настраивает Verifier.
type Option func(*Verifier)

// WithTolerance включает проверку свежести метки времени.
// Нулевое значение (по умолчанию) отключает проверку.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		v.tolerance = d
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier создаёт Verifier с указанным секретом.
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify сверяет подпись с подписью, вычисленной над исходными байтами payload.
// payload должен быть телом запроса в том виде, в каком оно было получено.
func (v *Verifier) Verify(timestamp string, payload []byte, sig string) error {
	if sig == "" || timestamp == "" {
		return ErrMissingHeaders
	}
	// Без секрета любая подпись недействительна.
	if len(v.secret) == 0 {
		return ErrInvalidSignature
	}

	expected := Sign(v.secret, timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}

	if v.tolerance > 0 {
		ts, ok := parseTimestamp(timestamp)
		if !ok {
			return ErrStaleTimestamp
		}
		if diff := v.now().Sub(ts); math.Abs(float64(diff)) > float64(v.tolerance) {
			return ErrStaleTimestamp
		}
	}

	return nil
}

// parseTimestamp понимает метку времени в миллисекундах или секундах Unix.
func parseTimestamp(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	// 1e11 секунд соответствуют примерно 5138 году, большее значение считаем миллисекундами.
	if n > 1e11 {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}
