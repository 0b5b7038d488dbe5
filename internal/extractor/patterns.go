package extractor

import (
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?i)<script\b([^>]*)>`)
	imgRe    = regexp.MustCompile(`(?i)<img\b([^>]*)>`)
	linkRe   = regexp.MustCompile(`(?i)<link\b([^>]*)>`)
	metaRe   = regexp.MustCompile(`(?i)<meta\b([^>]*)>`)
	titleRe  = regexp.MustCompile(`(?is)<title\b[^>]*>(.*?)</title>`)
	attrRe   = regexp.MustCompile(`([a-zA-Z_:@][-a-zA-Z0-9_:.@]*)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'=<>` + "`" + `]+)))?`)

	styleRe      = regexp.MustCompile(`(?i)<style\b`)
	videoRe      = regexp.MustCompile(`(?i)<video\b|<iframe\b[^>]*(?:youtube|vimeo)`)
	fontFaceRe   = regexp.MustCompile(`(?i)@font-face`)
	mediaQueryRe = regexp.MustCompile(`(?i)@media\b`)

	ariaLabelRe = regexp.MustCompile(`(?i)\saria-label(?:ledby)?\s*=`)
	ariaAttrRe  = regexp.MustCompile(`(?i)\saria-[a-z]+\s*=`)
	roleRe      = regexp.MustCompile(`(?i)\srole\s*=`)
	labelRe     = regexp.MustCompile(`(?i)<label\b`)
	h1Re        = regexp.MustCompile(`(?i)<h1[\s>]`)
	h2Re        = regexp.MustCompile(`(?i)<h2[\s>]`)
	h3Re        = regexp.MustCompile(`(?i)<h3[\s>]`)

	lazyRe     = regexp.MustCompile(`(?i)loading\s*=\s*["']?lazy|\sdata-src\s*=`)
	minifiedRe = regexp.MustCompile(`(?i)\.min\.(?:js|css)\b`)

	wasmRe          = regexp.MustCompile(`\.wasm\b|WebAssembly\.`)
	serviceWorkerRe = regexp.MustCompile(`navigator\.serviceWorker|serviceWorker\.register`)
	webpRe          = regexp.MustCompile(`(?i)\.webp\b|image/webp`)
	avifRe          = regexp.MustCompile(`(?i)\.avif\b|image/avif`)

	reactRe   = regexp.MustCompile(`data-reactroot|react-dom|__NEXT_DATA__|/_next/static/`)
	vueRe     = regexp.MustCompile(`\sdata-v-[0-9a-f]{6,}|vue(?:\.runtime)?(?:\.global)?(?:\.prod)?(?:\.min)?\.js|__NUXT__`)
	svelteRe  = regexp.MustCompile(`class="[^"]*\bsvelte-[a-z0-9]{4,}|__sveltekit`)
	angularRe = regexp.MustCompile(`\sng-version=|\sng-app\b|angular(?:\.min)?\.js`)

	doctypeRe       = regexp.MustCompile(`(?i)<!doctype\s+html`)
	documentWriteRe = regexp.MustCompile(`document\.write\s*\(`)
	evalRe          = regexp.MustCompile(`\beval\s*\(`)
	noopenerRe      = regexp.MustCompile(`(?i)rel\s*=\s*["'][^"']*\bnoopener\b`)

	trackerRe = regexp.MustCompile(`(?i)google-analytics\.com|googletagmanager\.com|facebook\.com/tr\b|` +
		`connect\.facebook\.net|\bgtag\(|doubleclick\.net|mouseflow|clarity\.ms|hotjar|mixpanel|segment\.(?:com|io)`)
)

// parseAttrs parses the attribute text of a tag into a lower-case keyed map.
// Boolean attributes map to "".
func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		name := strings.ToLower(m[1])
		if _, dup := attrs[name]; dup {
			continue
		}
		switch {
		case m[2] != "":
			attrs[name] = m[2]
		case m[3] != "":
			attrs[name] = m[3]
		default:
			attrs[name] = m[4]
		}
	}
	return attrs
}
