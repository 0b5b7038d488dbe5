package scoring

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"testing"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/extractor"
	"github.com/IliaW/url-score-worker/internal/model"
)

func maximalBag() *model.FeatureBag {
	return &model.FeatureBag{
		Scripts: 1000, ExternalScripts: 900, InlineScripts: 100, ThirdPartyScripts: 800, Images: 1000,
		Stylesheets: 500, InlineStyles: 200, Videos: 300, Fonts: 50,
		AsyncScripts: 500, DeferScripts: 500, Preloads: 50, LazyLoad: true, Minified: true,
		ImagesWithAlt: 1000, ImagesEmptyAlt: 1000, ImagesMissingAlt: 1000, AriaLabels: 1000, AriaAttributes: 1000,
		Roles: 1000, Labels: 1000, H1: 1, H2: 50, H3: 50,
		Title: "A perfectly reasonable page title", MetaDescription: "A meta description long enough to count for snippets.",
		Canonical: true, OpenGraph: []string{"og:description", "og:image", "og:locale", "og:site_name", "og:title", "og:type", "og:url"},
		TwitterCard: true, Viewport: true, MediaQueries: 1000, MobileWebAppCapable: true, AppleMobileWebApp: true,
		WebAssembly: true, ServiceWorker: true, ESModules: true, WebP: true, AVIF: true, Framework: "vue",
		Doctype: true, Integrity: true, CrossOrigin: true, Noopener: true,
		Trackers: make([]string, 500), HTTPS: true, HSTS: true, CSP: true, XFrameOptions: true, XContentType: true,
		ReferrerPolicy: true, PermissionsPolicy: true,
		CDN: "fastly", EdgeCache: true, CacheControlPublic: true, CacheControlMaxAge: true, Compression: "br",
		ContentLengthBytes: 1 << 40, LoadTimeMs: 1 << 40,
	}
}

func assertBounded(t *testing.T, name string, s model.SubScoreSet) {
	t.Helper()
	for i, v := range s.Values() {
		if v < 0 || v > 100 {
			t.Errorf("%s: sub-score #%d = %d out of [0,100]", name, i, v)
		}
	}
}

func TestScore_AlwaysBounded(t *testing.T) {
	bags := map[string]*model.FeatureBag{
		"zero":    {},
		"maximal": maximalBag(),
		"tiny fast page": {
			LoadTimeMs: 1, ContentLengthBytes: 1, Viewport: true, H1: 1, Title: "Hello there world",
		},
		"all counts huge but no flags": {
			Scripts: math.MaxInt32, Images: math.MaxInt32, Videos: math.MaxInt32, ThirdPartyScripts: math.MaxInt32,
			ImagesMissingAlt: math.MaxInt32, ImagesEmptyAlt: math.MaxInt32, ContentLengthBytes: math.MaxInt64,
		},
	}
	for name, bag := range bags {
		for _, green := range []GreenStatus{GreenUnknown, GreenHost, NotGreenHost} {
			s := Score(bag, green)
			assertBounded(t, name, s)
			if o := Aggregate(s, DefaultWeights); o < 0 || o > 100 {
				t.Errorf("%s: overall %d out of range", name, o)
			}
		}
	}
}

func TestScore_IdempotentAndDeterministic(t *testing.T) {
	bag := maximalBag()
	first := Score(bag, GreenHost)
	second := Score(bag, GreenHost)
	if first != second {
		t.Fatalf("re-scoring changed sub-scores: %+v vs %+v", first, second)
	}
	if Aggregate(first, DefaultWeights) != Aggregate(second, DefaultWeights) {
		t.Fatal("aggregate is not deterministic")
	}
}

func TestScore_BareImagePageScoresLow(t *testing.T) {
	u, _ := url.Parse("https://example.com")
	bag := extractor.Extract(`<html><body><img src="x.png"></body></html>`, model.NewHeaders(http.Header{}), u)

	s := Score(bag, GreenUnknown)

	if s.Accessibility >= 50 {
		t.Errorf("Accessibility = %d, want < 50", s.Accessibility)
	}
	if s.Mobile >= 50 {
		t.Errorf("Mobile = %d, want < 50", s.Mobile)
	}
	if s.Infrastructure >= 50 {
		t.Errorf("Infrastructure = %d, want < 50", s.Infrastructure)
	}
}

func TestScore_WellTaggedPageScoresHighOnSEO(t *testing.T) {
	u, _ := url.Parse("https://example.com")
	html := `<html><head>
<title>Thirty characters title text!!</title>
<meta name="viewport" content="width=device-width">
<meta property="og:title" content="x"><meta property="og:description" content="x">
<meta property="og:image" content="x.png"><meta property="og:type" content="website">
<link rel="canonical" href="https://example.com/">
</head><body></body></html>`
	bag := extractor.Extract(html, model.Headers{}, u)
	if n := len([]rune(bag.Title)); n != 30 {
		t.Fatalf("fixture title length = %d, want 30", n)
	}

	if got := SEOSocial(bag); got <= 80 {
		t.Errorf("SEOSocial = %d, want > 80", got)
	}
}

func TestGreenHosting_FallbackNeverFails(t *testing.T) {
	bag := &model.FeatureBag{ContentLengthBytes: 200 * 1024, WebP: true}
	unknown := GreenHosting(bag, GreenUnknown)
	green := GreenHosting(bag, GreenHost)
	notGreen := GreenHosting(bag, NotGreenHost)

	if unknown != 48+8+6 {
		t.Errorf("unknown = %d, want neutral baseline plus static bonuses (62)", unknown)
	}
	if !(green > unknown && unknown > notGreen) {
		t.Errorf("expected green > unknown > not green, got %d, %d, %d", green, unknown, notGreen)
	}
}

func TestSpeed_FactorsAreIndividuallyCapped(t *testing.T) {
	few := Speed(&model.FeatureBag{Scripts: 15, LoadTimeMs: 700})
	many := Speed(&model.FeatureBag{Scripts: 5000, LoadTimeMs: 700})
	if few != many {
		t.Errorf("script penalty not capped: 15 scripts -> %d, 5000 scripts -> %d", few, many)
	}
	if few != 85-30 {
		t.Errorf("Speed = %d, want 55", few)
	}
}

func TestPageWeight_Bands(t *testing.T) {
	mb := int64(1024 * 1024)
	cases := []struct {
		bytes int64
		want  int
	}{
		{mb, 100},
		{2 * mb, 93},
		{4 * mb, 88},
		{20 * mb, 20},
		{100 * mb, 10},
		{0, 85},
	}
	for _, tc := range cases {
		if got := PageWeight(&model.FeatureBag{ContentLengthBytes: tc.bytes}); got != tc.want {
			t.Errorf("PageWeight(%d bytes) = %d, want %d", tc.bytes, got, tc.want)
		}
	}
}

func TestAggregate_RoundsOnceAtTheEnd(t *testing.T) {
	s := model.SubScoreSet{Speed: 5, Accessibility: 5, Infrastructure: 5, ModernTech: 5, SEOSocial: 5,
		PageWeight: 5, PrivacySecurity: 5, GreenHosting: 5, CodeQuality: 5, Mobile: 5}

	perTerm := 0
	for i, v := range s.Values() {
		perTerm += int(math.Round(float64(v) * DefaultWeights[i]))
	}

	if got := Aggregate(s, DefaultWeights); got != 5 {
		t.Fatalf("Aggregate = %d, want 5", got)
	}
	if perTerm == 5 {
		t.Fatal("fixture does not distinguish per-term rounding from single rounding")
	}
}

func TestAggregate_Extremes(t *testing.T) {
	all := model.SubScoreSet{Speed: 100, Accessibility: 100, Infrastructure: 100, ModernTech: 100, SEOSocial: 100,
		PageWeight: 100, PrivacySecurity: 100, GreenHosting: 100, CodeQuality: 100, Mobile: 100}
	if got := Aggregate(all, DefaultWeights); got != 100 {
		t.Errorf("all 100 -> %d", got)
	}
	if got := Aggregate(model.SubScoreSet{}, DefaultWeights); got != 0 {
		t.Errorf("all 0 -> %d", got)
	}
}

func TestWeights(t *testing.T) {
	if err := DefaultWeights.Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}

	w, err := WeightsFromConfig(&config.WeightsConfig{Speed: 0.5, Accessibility: 0.6})
	if !errors.Is(err, ErrWeightSum) {
		t.Errorf("expected ErrWeightSum, got %v (weights %v)", err, w)
	}

	equal := &config.WeightsConfig{Speed: .1, Accessibility: .1, Infrastructure: .1, ModernTech: .1, SEOSocial: .1,
		PageWeight: .1, PrivacySecurity: .1, GreenHosting: .1, CodeQuality: .1, Mobile: .1}
	if _, err := WeightsFromConfig(equal); err != nil {
		t.Errorf("equal weights rejected: %v", err)
	}

	if w, err := WeightsFromConfig(nil); err != nil || w != DefaultWeights {
		t.Errorf("nil config should yield defaults, got %v, %v", w, err)
	}
}
