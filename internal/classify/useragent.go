package classify

import (
	"strings"

	"github.com/samber/lo"
)

const Unknown = "Unknown"

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// UserAgent is the coarse classification of a User-Agent header.
type UserAgent struct {
	DeviceType string
	Browser    string
	OS         string
}

type token struct {
	needle string
	label  string
}

var (
	tabletTokens = []string{"tablet", "ipad", "playbook", "silk"}
	mobileTokens = []string{"mobile", "iphone", "ipod", "android", "blackberry", "opera mini", "iemobile"}

	// First match wins. Chromium-based Edge also sends "Chrome" and every
	// Chrome sends "Safari", so the order decides the label.
	browserTokens = []token{
		{"Chrome", "Chrome"},
		{"Firefox", "Firefox"},
		{"Safari", "Safari"},
		{"Edge", "Edge"},
	}

	// First match wins. Android UAs also carry "Linux" and iOS UAs carry
	// "like Mac OS X"; the order below decides those cases.
	osTokens = []token{
		{"Windows", "Windows"},
		{"Mac", "macOS"},
		{"Linux", "Linux"},
		{"Android", "Android"},
		{"iPhone", "iOS"},
		{"iPad", "iOS"},
	}
)

// ParseUserAgent classifies ua into device type, browser and OS.
func ParseUserAgent(ua string) UserAgent {
	return UserAgent{
		DeviceType: deviceType(ua),
		Browser:    firstMatch(ua, browserTokens),
		OS:         firstMatch(ua, osTokens),
	}
}

func deviceType(ua string) string {
	lower := strings.ToLower(ua)
	has := func(tok string) bool { return strings.Contains(lower, tok) }
	switch {
	case lo.ContainsBy(tabletTokens, has):
		return DeviceTablet
	case lo.ContainsBy(mobileTokens, has):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

func firstMatch(ua string, tokens []token) string {
	t, ok := lo.Find(tokens, func(t token) bool { return strings.Contains(ua, t.needle) })
	if !ok {
		return Unknown
	}
	return t.label
}
