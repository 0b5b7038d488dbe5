package model

// FeatureBag is produced once per scan by the extractor and shared read-only by every calculator.
type FeatureBag struct {
	// resources
	Scripts           int `json:"scripts"`
	ExternalScripts   int `json:"externalScripts"`
	InlineScripts     int `json:"inlineScripts"`
	ThirdPartyScripts int `json:"thirdPartyScripts"`
	Images            int `json:"images"`
	Stylesheets       int `json:"stylesheets"`
	InlineStyles      int `json:"inlineStyles"`
	Videos            int `json:"videos"`
	Fonts             int `json:"fonts"`

	// performance hints
	AsyncScripts int  `json:"asyncScripts"`
	DeferScripts int  `json:"deferScripts"`
	Preloads     int  `json:"preloads"`
	LazyLoad     bool `json:"lazyLoad"`
	Minified     bool `json:"minified"`

	// accessibility
	ImagesWithAlt    int `json:"imagesWithAlt"`
	ImagesEmptyAlt   int `json:"imagesEmptyAlt"`
	ImagesMissingAlt int `json:"imagesMissingAlt"`
	AriaLabels       int `json:"ariaLabels"`
	AriaAttributes   int `json:"ariaAttributes"`
	Roles            int `json:"roles"`
	Labels           int `json:"labels"`
	H1               int `json:"h1"`
	H2               int `json:"h2"`
	H3               int `json:"h3"`

	// seo and social
	Title           string   `json:"title"`
	MetaDescription string   `json:"metaDescription"`
	Canonical       bool     `json:"canonical"`
	OpenGraph       []string `json:"openGraph"` // distinct og:* properties, sorted
	TwitterCard     bool     `json:"twitterCard"`

	// mobile
	Viewport            bool `json:"viewport"`
	MediaQueries        int  `json:"mediaQueries"`
	MobileWebAppCapable bool `json:"mobileWebAppCapable"`
	AppleMobileWebApp   bool `json:"appleMobileWebApp"`

	// modernity
	WebAssembly   bool   `json:"webAssembly"`
	ServiceWorker bool   `json:"serviceWorker"`
	ESModules     bool   `json:"esModules"`
	WebP          bool   `json:"webp"`
	AVIF          bool   `json:"avif"`
	Framework     string `json:"framework,omitempty"`

	// code quality
	Doctype       bool `json:"doctype"`
	DocumentWrite bool `json:"documentWrite"`
	Eval          bool `json:"eval"`
	Integrity     bool `json:"integrity"`
	CrossOrigin   bool `json:"crossOrigin"`
	Noopener      bool `json:"noopener"`

	// trust
	Trackers          []string `json:"trackers"`
	HTTPS             bool     `json:"https"`
	HSTS              bool     `json:"hsts"`
	CSP               bool     `json:"csp"`
	XFrameOptions     bool     `json:"xFrameOptions"`
	XContentType      bool     `json:"xContentTypeOptions"`
	ReferrerPolicy    bool     `json:"referrerPolicy"`
	PermissionsPolicy bool     `json:"permissionsPolicy"`

	// infrastructure
	CDN                string `json:"cdn,omitempty"`
	EdgeCache          bool   `json:"edgeCache"`
	CacheControlPublic bool   `json:"cacheControlPublic"`
	CacheControlMaxAge bool   `json:"cacheControlMaxAge"`
	Compression        string `json:"compression,omitempty"`
	Server             string `json:"server,omitempty"`

	// page
	ContentLengthBytes int64 `json:"contentLengthBytes"`
	LoadTimeMs         int64 `json:"loadTimeMs"`
}

// HasOpenGraph reports whether the given og:* property was declared.
func (b *FeatureBag) HasOpenGraph(property string) bool {
	for _, p := range b.OpenGraph {
		if p == property {
			return true
		}
	}
	return false
}

// SizeMB is the page weight in mebibytes.
func (b *FeatureBag) SizeMB() float64 {
	return float64(b.ContentLengthBytes) / (1024 * 1024)
}
