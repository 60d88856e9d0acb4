package resilience

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(eris.New("503"), 503), true},
		{"wrapped transient", eris.Wrap(NewTransientError(eris.New("429"), 429), "scan: fetch"), true},
		{"blocked counts as transient", NewBlockedError(eris.New("403"), 403, "status"), true},
		{"plain error", eris.New("selector matched nothing"), false},
		{"connection reset message", eris.New("read tcp: connection reset by peer"), true},
		{"dns failure message", eris.New("dial tcp: no such host"), true},
		{"io timeout message", eris.New("context deadline: i/o timeout"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	blocked := NewBlockedError(eris.New("cloudflare challenge"), 403, "challenge")
	assert.True(t, IsBlocked(blocked))
	assert.True(t, IsBlocked(eris.Wrap(blocked, "scan: fetch")))
	assert.False(t, IsBlocked(NewTransientError(eris.New("503"), 503)))
	assert.False(t, IsBlocked(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestIsBlockedHTTPStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlockedHTTPStatus(403))
	assert.True(t, IsBlockedHTTPStatus(429))
	assert.False(t, IsBlockedHTTPStatus(404))
	assert.False(t, IsBlockedHTTPStatus(500))
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "blocked", ClassifyError(NewBlockedError(eris.New("403"), 403, "status")))
	assert.Equal(t, "transient", ClassifyError(NewTransientError(eris.New("503"), 503)))
	assert.Equal(t, "permanent", ClassifyError(eris.New("not a product page")))
}
