package carrier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"26000", 26000, true},
		{"1,234.56", 1234.56, true},
		{"1.234,56", 1234.56, true},
		{"1,234", 1234, true},
		{"1.837", 1837, true},
		{"45.45", 45.45, true},
		{"12,5", 12.5, true},
		{"26 000", 26000, true},
		{"1 165.00", 1165, true},
		{"– 50", -50, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestParseMoney(t *testing.T) {
	t.Parallel()

	cur, v, ok := ParseMoney("USD 1,165.00")
	assert.True(t, ok)
	assert.Equal(t, "USD", cur)
	assert.InDelta(t, 1165.0, v, 1e-9)

	cur, v, ok = ParseMoney(" 1.234,50   eur ")
	assert.True(t, ok)
	assert.Equal(t, "EUR", cur)
	assert.InDelta(t, 1234.5, v, 1e-9)

	cur, v, ok = ParseMoney("45.45")
	assert.True(t, ok)
	assert.Empty(t, cur)
	assert.InDelta(t, 45.45, v, 1e-9)

	_, _, ok = ParseMoney("Included")
	assert.False(t, ok)
}

func TestDetectBlock(t *testing.T) {
	t.Parallel()

	blocked, kind := DetectBlock(`<title>Security Check</title><p>Cloudflare needs to review the security of your connection</p>`)
	assert.True(t, blocked)
	assert.Equal(t, BlockSecurityCheck, kind)

	blocked, kind = DetectBlock(`<div class="cf-browser-verification">Checking your browser</div>`)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)

	blocked, kind = DetectBlock(`<div class="g-recaptcha"></div>`)
	assert.True(t, blocked)
	assert.Equal(t, BlockCaptcha, kind)

	blocked, kind = DetectBlock(`<form><input data-testid="start-input"></form>`)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, kind)
}

func TestParseBound(t *testing.T) {
	t.Parallel()

	got, ok := parseBound("Sat Nov 01 2025 00:00:00 GMT+0000 (Coordinated Universal Time)")
	assert.True(t, ok)
	assert.Equal(t, "2025-11-01", got.Format("2006-01-02"))

	got, ok = parseBound("2025-06-30T00:00:00Z")
	assert.True(t, ok)
	assert.Equal(t, "2025-06-30", got.Format("2006-01-02"))

	_, ok = parseBound("")
	assert.False(t, ok)
}
