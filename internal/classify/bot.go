// Package classify derives traffic attributes from raw beacon inputs: whether
// the caller is a crawler, what device/browser/OS it runs, and which
// acquisition channel brought it in. Every function here is pure and total:
// unknown input degrades to a sentinel, never to an error.
package classify

import (
	"strings"

	"github.com/samber/lo"
)

// botSignatures are matched as lowercase substrings of the User-Agent.
var botSignatures = []string{
	// search engines
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
	"yandexbot", "sogou", "exabot", "applebot", "petalbot",
	// social preview fetchers
	"facebookexternalhit", "facebot", "twitterbot", "linkedinbot",
	"whatsapp", "telegrambot", "discordbot", "slackbot", "pinterestbot",
	"redditbot", "skypeuripreview",
	// SEO and AI crawlers
	"semrushbot", "ahrefsbot", "mj12bot", "dotbot", "bytespider",
	"gptbot", "ccbot", "ia_archiver",
	// generic toolkits
	"crawler", "spider", "scrapy", "python-requests", "headlesschrome",
	"phantomjs", "wget", "curl/", "go-http-client",
}

// IsBot reports whether ua carries a known crawler signature.
func IsBot(ua string) bool {
	if ua == "" {
		return false
	}
	lower := strings.ToLower(ua)
	return lo.ContainsBy(botSignatures, func(sig string) bool {
		return strings.Contains(lower, sig)
	})
}
