package scan

import (
	"strings"
)

// BlockType describes the kind of bot protection detected on a page.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockStatus     BlockType = "status"
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks a fetched page for signs of anti-bot protection. The
// scan agent gives blocked pages one local wait-and-reload before counting
// the URL as failed.
func DetectBlock(statusCode int, headers map[string]string, body string) (bool, BlockType) {
	if statusCode == 403 || statusCode == 429 {
		if isCloudflare(headers) {
			return true, BlockCloudflare
		}
		return true, BlockStatus
	}

	lower := strings.ToLower(body)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}

	// JS-only shell: tiny body that tells non-JS clients to go away. A
	// rendered page this small never carries a product.
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

func isCloudflare(headers map[string]string) bool {
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "cf-ray", "cf-cache-status":
			return true
		case "server":
			if strings.EqualFold(v, "cloudflare") {
				return true
			}
		}
	}
	return false
}
