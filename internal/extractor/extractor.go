// Package extractor turns raw markup and response headers into a FeatureBag. It is pattern based on purpose:
// malformed or truncated documents simply yield fewer matches.
package extractor

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/IliaW/url-score-worker/internal/model"
)

var cdnProviders = []string{"cloudflare", "akamai", "fastly", "cloudfront", "cdn77", "bunnycdn", "stackpath"}

// FromFetch extracts features from a fetch result and stamps the page-level measurements onto the bag.
func FromFetch(res *model.FetchResult, target *url.URL) *model.FeatureBag {
	bag := Extract(res.HTML, res.Headers, target)
	bag.ContentLengthBytes = res.ContentLengthBytes
	bag.LoadTimeMs = res.ElapsedMs
	return bag
}

// Extract runs every probe over html and headers. target identifies first-party scripts and the scheme.
func Extract(html string, headers model.Headers, target *url.URL) *model.FeatureBag {
	bag := &model.FeatureBag{}
	siteHost := ""
	if target != nil {
		siteHost = model.SiteHost(target.Host)
		bag.HTTPS = strings.EqualFold(target.Scheme, "https")
	}

	extractScripts(html, siteHost, bag)
	extractImages(html, bag)
	extractLinks(html, bag)
	extractMeta(html, bag)
	extractText(html, bag)
	extractHeaders(headers, bag)

	return bag
}

func extractScripts(html, siteHost string, bag *model.FeatureBag) {
	for _, m := range scriptRe.FindAllStringSubmatch(html, -1) {
		bag.Scripts++
		a := parseAttrs(m[1])
		src, hasSrc := a["src"]
		if hasSrc && strings.TrimSpace(src) != "" {
			bag.ExternalScripts++
			if host := scriptHost(src); host != "" && siteHost != "" && model.SiteHost(host) != siteHost {
				bag.ThirdPartyScripts++
			}
		} else {
			bag.InlineScripts++
		}
		if _, ok := a["async"]; ok {
			bag.AsyncScripts++
		}
		if _, ok := a["defer"]; ok {
			bag.DeferScripts++
		}
		if strings.EqualFold(strings.TrimSpace(a["type"]), "module") {
			bag.ESModules = true
		}
		if _, ok := a["integrity"]; ok {
			bag.Integrity = true
		}
		if _, ok := a["crossorigin"]; ok {
			bag.CrossOrigin = true
		}
	}
}

// scriptHost returns the host of an absolute or protocol-relative src, or "" for same-origin paths.
func scriptHost(src string) string {
	src = strings.TrimSpace(src)
	lower := strings.ToLower(src)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "//") {
		return ""
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return u.Host
}

func extractImages(html string, bag *model.FeatureBag) {
	for _, m := range imgRe.FindAllStringSubmatch(html, -1) {
		bag.Images++
		a := parseAttrs(m[1])
		alt, ok := a["alt"]
		switch {
		case !ok:
			bag.ImagesMissingAlt++
		case strings.TrimSpace(alt) == "":
			bag.ImagesEmptyAlt++
		default:
			bag.ImagesWithAlt++
		}
		if strings.EqualFold(a["loading"], "lazy") {
			bag.LazyLoad = true
		}
		if _, ok := a["data-src"]; ok {
			bag.LazyLoad = true
		}
	}
}

func extractLinks(html string, bag *model.FeatureBag) {
	for _, m := range linkRe.FindAllStringSubmatch(html, -1) {
		a := parseAttrs(m[1])
		rels := strings.Fields(strings.ToLower(a["rel"]))
		for _, rel := range rels {
			switch rel {
			case "stylesheet":
				bag.Stylesheets++
			case "preload", "modulepreload":
				bag.Preloads++
			case "canonical":
				bag.Canonical = true
			}
		}
		if media, ok := a["media"]; ok && strings.TrimSpace(media) != "" && !strings.EqualFold(media, "all") {
			bag.MediaQueries++
		}
		if _, ok := a["integrity"]; ok {
			bag.Integrity = true
		}
		if _, ok := a["crossorigin"]; ok {
			bag.CrossOrigin = true
		}
	}
}

func extractMeta(html string, bag *model.FeatureBag) {
	og := make(map[string]struct{})
	for _, m := range metaRe.FindAllStringSubmatch(html, -1) {
		a := parseAttrs(m[1])
		name := strings.ToLower(strings.TrimSpace(a["name"]))
		property := strings.ToLower(strings.TrimSpace(a["property"]))
		content := strings.TrimSpace(a["content"])

		switch {
		case name == "description" && bag.MetaDescription == "":
			bag.MetaDescription = content
		case name == "viewport":
			bag.Viewport = true
		case name == "twitter:card" || property == "twitter:card":
			bag.TwitterCard = true
		case name == "mobile-web-app-capable":
			bag.MobileWebAppCapable = true
		case strings.HasPrefix(name, "apple-mobile-web-app"):
			bag.AppleMobileWebApp = true
		}
		if strings.HasPrefix(property, "og:") {
			og[property] = struct{}{}
		} else if strings.HasPrefix(name, "og:") {
			og[name] = struct{}{}
		}
	}
	bag.OpenGraph = make([]string, 0, len(og))
	for p := range og {
		bag.OpenGraph = append(bag.OpenGraph, p)
	}
	sort.Strings(bag.OpenGraph)
}

func extractText(html string, bag *model.FeatureBag) {
	if m := titleRe.FindStringSubmatch(html); m != nil {
		bag.Title = strings.Join(strings.Fields(m[1]), " ")
	}

	bag.InlineStyles = len(styleRe.FindAllStringIndex(html, -1))
	bag.Videos = len(videoRe.FindAllStringIndex(html, -1))
	bag.Fonts = len(fontFaceRe.FindAllStringIndex(html, -1))
	bag.MediaQueries += len(mediaQueryRe.FindAllStringIndex(html, -1))

	bag.AriaLabels = len(ariaLabelRe.FindAllStringIndex(html, -1))
	bag.AriaAttributes = len(ariaAttrRe.FindAllStringIndex(html, -1))
	bag.Roles = len(roleRe.FindAllStringIndex(html, -1))
	bag.Labels = len(labelRe.FindAllStringIndex(html, -1))
	bag.H1 = len(h1Re.FindAllStringIndex(html, -1))
	bag.H2 = len(h2Re.FindAllStringIndex(html, -1))
	bag.H3 = len(h3Re.FindAllStringIndex(html, -1))

	if !bag.LazyLoad {
		bag.LazyLoad = lazyRe.MatchString(html)
	}
	bag.Minified = minifiedRe.MatchString(html)

	bag.WebAssembly = wasmRe.MatchString(html)
	bag.ServiceWorker = serviceWorkerRe.MatchString(html)
	bag.WebP = webpRe.MatchString(html)
	bag.AVIF = avifRe.MatchString(html)
	bag.Framework = detectFramework(html)

	bag.Doctype = doctypeRe.MatchString(head(html, 1024))
	bag.DocumentWrite = documentWriteRe.MatchString(html)
	bag.Eval = evalRe.MatchString(html)
	bag.Noopener = noopenerRe.MatchString(html)

	bag.Trackers = []string{}
	for _, t := range trackerRe.FindAllString(html, -1) {
		bag.Trackers = append(bag.Trackers, strings.ToLower(t))
	}
}

func extractHeaders(h model.Headers, bag *model.FeatureBag) {
	bag.HSTS = h.Has("Strict-Transport-Security")
	bag.CSP = h.Has("Content-Security-Policy")
	bag.XFrameOptions = h.Has("X-Frame-Options")
	bag.XContentType = h.Has("X-Content-Type-Options")
	bag.ReferrerPolicy = h.Has("Referrer-Policy")
	bag.PermissionsPolicy = h.Has("Permissions-Policy")

	bag.Server = strings.ToLower(h.Get("Server"))
	via := strings.ToLower(h.Get("Via"))
	for _, cdn := range cdnProviders {
		if strings.Contains(bag.Server, cdn) || strings.Contains(via, cdn) {
			bag.CDN = cdn
			break
		}
	}
	bag.EdgeCache = h.Has("X-Cache") || h.Has("CF-Cache-Status") || h.Has("X-Varnish")
	bag.CacheControlPublic = h.Contains("Cache-Control", "public")
	bag.CacheControlMaxAge = h.Contains("Cache-Control", "max-age")
	switch {
	case h.Contains("Content-Encoding", "br"):
		bag.Compression = "br"
	case h.Contains("Content-Encoding", "gzip"):
		bag.Compression = "gzip"
	}
}

func detectFramework(html string) string {
	switch {
	case reactRe.MatchString(html):
		return "react"
	case vueRe.MatchString(html):
		return "vue"
	case svelteRe.MatchString(html):
		return "svelte"
	case angularRe.MatchString(html):
		return "angular"
	}
	return ""
}

// head returns at most n bytes of s without splitting a rune.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
