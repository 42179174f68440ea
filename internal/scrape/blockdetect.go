package scrape

import (
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// Challenge pages are small. Markers in larger documents usually come from
// embedded widgets (newsletter captcha, CDN scripts) on a real product page.
const challengeMaxLen = 16 * 1024

// DetectBlock checks a rendered page for signs of anti-bot protection.
// statusCode is the origin status reported by the rendering service.
func DetectBlock(statusCode int, body string) (bool, BlockType) {
	lower := strings.ToLower(body)

	if (statusCode == 403 || statusCode == 503) && strings.Contains(lower, "cloudflare") {
		return true, BlockCloudflare
	}

	if len(body) > challengeMaxLen {
		return false, BlockNone
	}

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "are you a robot") ||
		strings.Contains(lower, "verify you are human") {
		return true, BlockCaptcha
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
