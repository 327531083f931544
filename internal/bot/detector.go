// Package bot classifies inbound user agents as crawlers or humans.
package bot

import "strings"

// signatures is the fixed list of crawler user-agent fragments. Matching is
// case-insensitive substring, so entries are stored lowercase. The list covers
// search-engine indexers, AI content fetchers, and social preview generators.
var signatures = []string{
	// Search engines
	"googlebot",
	"bingbot",
	"slurp", // Yahoo
	"duckduckbot",
	"baiduspider",
	"yandexbot",
	"applebot",
	"petalbot",
	"sogou",

	// AI crawlers
	"gptbot",
	"chatgpt-user",
	"oai-searchbot",
	"claudebot",
	"claude-web",
	"anthropic-ai",
	"perplexitybot",
	"google-extended",
	"ccbot",
	"bytespider",
	"amazonbot",
	"cohere-ai",
	"youbot",

	// Social preview generators
	"facebookexternalhit",
	"facebookcatalog",
	"twitterbot",
	"linkedinbot",
	"slackbot",
	"discordbot",
	"whatsapp",
	"telegrambot",
	"pinterestbot",
	"redditbot",
	"skypeuripreview",
	"vkshare",

	// SEO tooling
	"rogerbot",
	"ahrefsbot",
	"semrushbot",
	"mj12bot",
	"screaming frog",
}

// IsBot reports whether the user agent matches a known crawler signature.
// An empty user agent classifies as human. Pure, no I/O.
func IsBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, sig := range signatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}
