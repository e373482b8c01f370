package carrier

import (
	"strings"
)

// BlockType describes the kind of anti-bot interstitial a page shows.
type BlockType string

const (
	BlockNone          BlockType = ""
	BlockCloudflare    BlockType = "cloudflare"
	BlockCaptcha       BlockType = "captcha"
	BlockSecurityCheck BlockType = "security_check"
)

// DetectBlock inspects page HTML for anti-bot interstitials. Portals behind
// Cloudflare show a "Security Check" page that a human must clear in a
// headed browser before the form loads.
func DetectBlock(html string) (bool, BlockType) {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "security check") &&
		(strings.Contains(lower, "cloudflare") || strings.Contains(lower, "verify you are human")) {
		return true, BlockSecurityCheck
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}

	return false, BlockNone
}
