// Package discovery finds candidate legal-code URLs that search did not return:
// sitemap entries on a jurisdiction's own domains and links on fetched index pages.
package discovery

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/legalcode-service/pkg/utils"
)

var (
	legalPattern   = regexp.MustCompile(`(?i)(code|ordinance|charter|municipal|chapter|title|article|section|regulation|bylaw|zoning|statute|legislation|laws?\b)`)
	strongPattern  = regexp.MustCompile(`(?i)(/codes?/|ordinances?|charter|municipal[-_ ]?code|code[-_ ]?of[-_ ]?ordinances)`)
	sectionPattern = regexp.MustCompile(`(?i)(chapter|article|section|title)[-_/]?\d*`)
	excludePattern = regexp.MustCompile(`(?i)(/(login|log-in|signin|sign-in|logout|register|account|admin|wp-admin|search)(/|$|\.|\?))|[?&](q|query|search|s|keywords)=`)
	documentExts   = map[string]bool{".pdf": true, ".doc": true, ".docx": true}
)

// Link is a candidate URL found on a page with a priority from 1 (weak) to 5 (strong).
type Link struct {
	URL      string
	Priority int
}

// ExtractLinks returns the legal-document links of an HTML page, resolved
// against baseURL, restricted to the whitelisted domains and ordered by
// priority. An empty whitelist restricts links to the page's own host.
func ExtractLinks(baseURL string, raw []byte, whitelist []string) ([]Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if len(whitelist) == 0 {
		whitelist = []string{base.Hostname()}
	}

	seen := make(map[string]bool)
	var links []Link
	add := func(ref string) {
		u, ok := resolve(base, ref)
		if !ok || seen[u.String()] {
			return
		}
		seen[u.String()] = true
		if !Allowed(u.Hostname(), whitelist) || !IsLegalURL(u) {
			return
		}
		links = append(links, Link{URL: u.String(), Priority: Priority(u)})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) { add(s.AttrOr("href", "")) })
	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) { add(s.AttrOr("src", "")) })
	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) { add(s.AttrOr("action", "")) })

	sort.SliceStable(links, func(i, j int) bool {
		if links[i].Priority != links[j].Priority {
			return links[i].Priority > links[j].Priority
		}
		return links[i].URL < links[j].URL
	})
	return links, nil
}

// resolve makes ref absolute, drops its fragment and prefers https.
func resolve(base *url.URL, ref string) (*url.URL, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return nil, false
	}
	abs, err := utils.ToAbsoluteURL(base, ref)
	if err != nil {
		return nil, false
	}
	u, err := url.Parse(abs)
	if err != nil {
		return nil, false
	}
	switch u.Scheme {
	case "https":
	case "http":
		u.Scheme = "https"
	default:
		return nil, false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, true
}

// Allowed reports whether host is a whitelisted domain or one of its subdomains.
func Allowed(host string, whitelist []string) bool {
	host = strings.ToLower(host)
	for _, d := range whitelist {
		d = strings.ToLower(strings.TrimPrefix(d, "www."))
		h := strings.TrimPrefix(host, "www.")
		if h == d || strings.HasSuffix(h, "."+d) {
			return true
		}
	}
	return false
}

// IsLegalURL reports whether the path looks like a legal document and is not
// a login, admin or search page.
func IsLegalURL(u *url.URL) bool {
	target := u.Path
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	if excludePattern.MatchString(target) {
		return false
	}
	return legalPattern.MatchString(u.Path)
}

// Priority scores a legal URL from 1 to 5.
func Priority(u *url.URL) int {
	p := 1
	if strongPattern.MatchString(u.Path) {
		p += 2
	}
	if documentExts[strings.ToLower(path.Ext(u.Path))] {
		p++
	}
	if sectionPattern.MatchString(u.Path) {
		p++
	}
	if p > 5 {
		p = 5
	}
	return p
}
