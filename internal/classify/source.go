package classify

import (
	"net/url"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/publicsuffix"
)

// Acquisition channels.
const (
	SourceDirect   = "direct"
	SourceOrganic  = "organic"
	SourceSocial   = "social"
	SourceReferral = "referral"
	SourceEmail    = "email"
	SourcePaid     = "paid"
)

// Source is the acquisition channel of a visit. Domain is empty when the
// channel came from UTM tags or there was no usable referrer.
type Source struct {
	Source string
	Domain string
}

// UTM holds the raw campaign tags found on the landing URL.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
	Content  string
	Term     string
}

var (
	paidMediums  = []string{"cpc", "ppc", "paid"}
	emailMediums = []string{"email", "newsletter"}

	socialDomains = lo.SliceToMap([]string{
		"facebook.com", "m.facebook.com", "l.facebook.com", "lm.facebook.com", "fb.com",
		"instagram.com", "l.instagram.com",
		"twitter.com", "mobile.twitter.com", "t.co", "x.com",
		"linkedin.com", "lnkd.in",
		"pinterest.com", "reddit.com", "old.reddit.com",
		"youtube.com", "m.youtube.com", "tiktok.com",
		"vk.com", "t.me", "telegram.org", "web.whatsapp.com",
		"threads.net", "quora.com",
	}, func(d string) (string, struct{}) { return d, struct{}{} })

	searchDomains = lo.SliceToMap([]string{
		"google.com", "google.ge", "google.co.uk", "google.de", "google.ru", "google.com.tr",
		"bing.com", "yahoo.com", "search.yahoo.com", "duckduckgo.com",
		"yandex.ru", "yandex.com", "baidu.com", "ecosia.org",
		"ask.com", "search.brave.com", "startpage.com",
	}, func(d string) (string, struct{}) { return d, struct{}{} })

	// Any registrable domain named after one of these is a search engine,
	// whatever its country suffix: google.fr, google.com.br, yandex.kz.
	searchBrands = lo.SliceToMap([]string{
		"google", "bing", "yahoo", "yandex", "baidu", "duckduckgo", "ecosia", "startpage",
	}, func(b string) (string, struct{}) { return b, struct{}{} })

	// Matched by containment on the hostname or the full referrer.
	emailProviders = []string{
		"mail.google.com", "outlook.live.com", "outlook.office.com",
		"mail.yahoo.com", "mail.ru", "mail.yandex", "proton.me",
		"mail.aol.com", "zoho.com/mail",
	}
)

// ClassifySource derives the acquisition channel. UTM medium on currentPage
// wins over the referrer; an unusable referrer means direct traffic.
func ClassifySource(referrer, currentPage string) Source {
	medium := ExtractUTM(currentPage).Medium
	switch {
	case lo.ContainsBy(paidMediums, func(m string) bool { return strings.EqualFold(medium, m) }):
		return Source{Source: SourcePaid}
	case lo.ContainsBy(emailMediums, func(m string) bool { return strings.EqualFold(medium, m) }):
		return Source{Source: SourceEmail}
	}

	if referrer == "" || referrer == "null" {
		return Source{Source: SourceDirect}
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return Source{Source: SourceDirect}
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	// webmail lives under search and social domains, so it is checked first
	if lo.ContainsBy(emailProviders, func(p string) bool { return strings.Contains(host, p) }) {
		return Source{Source: SourceEmail, Domain: host}
	}
	if underDomain(host, socialDomains) {
		return Source{Source: SourceSocial, Domain: host}
	}
	if underDomain(host, searchDomains) || isSearchBrand(host) {
		return Source{Source: SourceOrganic, Domain: host}
	}
	lowerRef := strings.ToLower(referrer)
	if lo.ContainsBy(emailProviders, func(p string) bool { return strings.Contains(lowerRef, p) }) {
		return Source{Source: SourceEmail, Domain: host}
	}
	return Source{Source: SourceReferral, Domain: host}
}

// underDomain reports whether host is one of domains or a subdomain of one.
func underDomain(host string, domains map[string]struct{}) bool {
	for h := host; ; {
		if _, ok := domains[h]; ok {
			return true
		}
		_, parent, ok := strings.Cut(h, ".")
		if !ok {
			return false
		}
		h = parent
	}
}

func isSearchBrand(host string) bool {
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	name, _, _ := strings.Cut(site, ".")
	_, ok := searchBrands[name]
	return ok
}

// ExtractUTM reads utm_* query parameters from pageURL. A URL that does not
// parse yields an empty UTM.
func ExtractUTM(pageURL string) UTM {
	if pageURL == "" {
		return UTM{}
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return UTM{}
	}
	q := u.Query()
	return UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Content:  q.Get("utm_content"),
		Term:     q.Get("utm_term"),
	}
}
