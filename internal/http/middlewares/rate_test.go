package middlewares

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPOnlyRateKeyIgnoresSpoofedForwardedFor(t *testing.T) {
	keyFn := IPOnlyRateKey(false)

	r := httptest.NewRequest("POST", "/v2/factor/sidechannel/verify", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	base := keyFn(r)
	assert.Equal(t, "ip:203.0.113.7", base)

	// rotar el header no cambia la key: el limiter sigue contando
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, base, keyFn(r))
	r.Header.Set("X-Forwarded-For", "10.0.0.2, 198.51.100.9")
	assert.Equal(t, base, keyFn(r))
}

func TestIPOnlyRateKeyBehindTrustedProxy(t *testing.T) {
	keyFn := IPOnlyRateKey(true)

	r := httptest.NewRequest("POST", "/v2/factor/sidechannel/verify", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")
	assert.Equal(t, "ip:203.0.113.7", keyFn(r))

	// sin header cae a RemoteAddr
	r.Header.Del("X-Forwarded-For")
	assert.Equal(t, "ip:10.0.0.5", keyFn(r))
}

func TestIPAndPathRateKeySeparatesBudgets(t *testing.T) {
	keyFn := IPAndPathRateKey(false)

	send := httptest.NewRequest("POST", "/v2/factor/sidechannel/send", nil)
	send.RemoteAddr = "203.0.113.7:51234"
	verify := httptest.NewRequest("POST", "/v2/factor/sidechannel/verify", nil)
	verify.RemoteAddr = "203.0.113.7:51234"

	assert.NotEqual(t, keyFn(send), keyFn(verify))
}
