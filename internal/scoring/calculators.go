// Package scoring converts a FeatureBag into ten independent sub-scores and one weighted overall score.
//
// Every calculator starts from its own baseline, applies individually capped deltas and finishes with a
// single round-and-clamp into [0,100].
package scoring

import (
	"math"

	"github.com/IliaW/url-score-worker/internal/model"
)

// GreenStatus is the outcome of the green hosting reputation lookup.
type GreenStatus int

const (
	GreenUnknown GreenStatus = iota // lookup disabled, failed or timed out
	GreenHost
	NotGreenHost
)

func (g GreenStatus) String() string {
	return [...]string{"unavailable", "green", "not_green"}[g]
}

// Score runs all ten calculators over the bag.
func Score(b *model.FeatureBag, green GreenStatus) model.SubScoreSet {
	return model.SubScoreSet{
		Speed:           Speed(b),
		Accessibility:   Accessibility(b),
		Infrastructure:  Infrastructure(b),
		ModernTech:      ModernTech(b),
		SEOSocial:       SEOSocial(b),
		PageWeight:      PageWeight(b),
		PrivacySecurity: PrivacySecurity(b),
		GreenHosting:    GreenHosting(b, green),
		CodeQuality:     CodeQuality(b),
		Mobile:          Mobile(b),
	}
}

// Speed starts optimistic: a page is fast until its load time and resource counts say otherwise.
func Speed(b *model.FeatureBag) int {
	s := 85.0
	switch t := b.LoadTimeMs; {
	case t > 5000:
		s -= 40
	case t > 3000:
		s -= 30
	case t > 2000:
		s -= 20
	case t > 1000:
		s -= 10
	case t < 500:
		s += 10
	}
	s -= capped(float64(b.Scripts)*2, 30)
	s -= capped(float64(b.Images)*0.6, 15)
	s -= capped(float64(b.Stylesheets)*3.5, 12)
	s -= capped(float64(b.Videos)*8, 15)
	s -= capped(b.SizeMB()*10, 25)
	if b.AsyncScripts > 0 {
		s += 5
	}
	if b.DeferScripts > 0 {
		s += 4
	}
	if b.Preloads > 0 {
		s += 3
	}
	if b.LazyLoad {
		s += 8
	}
	if b.Minified {
		s += 6
	}
	return clamp(s)
}

// Accessibility starts low and has to earn credit.
func Accessibility(b *model.FeatureBag) int {
	s := 40.0
	if b.Images > 0 {
		s += float64(b.ImagesWithAlt) / float64(b.Images) * 30
	} else {
		s += 5
	}
	s -= capped(float64(b.ImagesEmptyAlt)*2, 10)
	s -= capped(float64(b.ImagesMissingAlt)*2, 10)
	s += capped(float64(b.AriaLabels)*2.5, 20)
	s += capped(float64(b.AriaAttributes), 12)
	s += capped(float64(b.Roles)*2, 10)
	s += capped(float64(b.Labels)*2.5, 10)
	switch {
	case b.H1 == 1:
		s += 8
	case b.H1 > 1:
		s -= 5
	default:
		s -= 10
	}
	if b.H2 >= 2 {
		s += 5
	}
	return clamp(s)
}

// Infrastructure is derived from response headers only.
func Infrastructure(b *model.FeatureBag) int {
	s := 10.0
	if b.CDN != "" {
		s += 35
	}
	if b.EdgeCache {
		s += 25
	}
	if b.CacheControlPublic {
		s += 18
	}
	if b.CacheControlMaxAge {
		s += 10
	}
	switch b.Compression {
	case "br":
		s += 12
	case "gzip":
		s += 6
	}
	return clamp(s)
}

func ModernTech(b *model.FeatureBag) int {
	s := 8.0
	if b.WebAssembly {
		s += 22
	}
	if b.ServiceWorker {
		s += 18
	}
	if b.ESModules {
		s += 16
	}
	if b.WebP {
		s += 12
	}
	if b.AVIF {
		s += 14
	}
	if b.AsyncScripts > 5 {
		s += 6
	}
	if b.DeferScripts > 5 {
		s += 4
	}
	switch b.Framework {
	case "react":
		s += 8
	case "vue", "svelte":
		s += 10
	case "angular":
		s += 6
	}
	return clamp(s)
}

var primaryOpenGraph = map[string]float64{
	"og:title":       13,
	"og:description": 10,
	"og:image":       15,
	"og:url":         6,
}

func SEOSocial(b *model.FeatureBag) int {
	s := 10.0
	switch n := len([]rune(b.Title)); {
	case n >= 10 && n <= 70:
		s += 15
	case n > 70:
		s += 8
	}
	if len([]rune(b.MetaDescription)) > 50 {
		s += 12
	}
	if b.Canonical {
		s += 11
	}
	if b.H1 == 1 {
		s += 8
	}
	other := 0.0
	for _, p := range b.OpenGraph {
		if w, ok := primaryOpenGraph[p]; ok {
			s += w
		} else {
			other += 3
		}
	}
	s += capped(other, 6)
	if b.TwitterCard {
		s += 10
	}
	if b.Viewport {
		s += 4
	}
	return clamp(s)
}

// PageWeight rewards pages in the 0.3 to 1.5 MB band; tiny pages are suspicious shells, heavy pages decay.
func PageWeight(b *model.FeatureBag) int {
	mb := b.SizeMB()
	s := 100.0
	switch {
	case mb > 10:
		s = math.Max(10, 100-(mb-10)*8)
	case mb > 5:
		s = math.Max(35, 100-(mb-5)*10)
	case mb > 3:
		s = math.Max(55, 100-(mb-3)*12)
	case mb > 1.5:
		s = math.Max(75, 100-(mb-1.5)*15)
	case mb < 0.3:
		s = math.Max(70, 100-(0.3-mb)*50)
	}
	return clamp(s)
}

func PrivacySecurity(b *model.FeatureBag) int {
	s := 45.0
	s -= capped(float64(len(b.Trackers))*6.5, 35)
	s -= capped(float64(b.ThirdPartyScripts)*1.2, 15)
	if b.HSTS {
		s += 14
	}
	if b.CSP {
		s += 13
	}
	if b.XFrameOptions {
		s += 10
	}
	if b.XContentType {
		s += 8
	}
	if b.ReferrerPolicy {
		s += 6
	}
	if b.PermissionsPolicy {
		s += 7
	}
	if b.HTTPS {
		s += 5
	}
	return clamp(s)
}

// GreenHosting never fails: without a lookup answer it falls back to the neutral baseline plus static bonuses.
func GreenHosting(b *model.FeatureBag, green GreenStatus) int {
	s := 48.0
	if green == NotGreenHost {
		s = 40
	}
	if b.SizeMB() < 1 {
		s += 8
	}
	if b.WebP || b.AVIF {
		s += 6
	}
	if b.LazyLoad {
		s += 4
	}
	if green == GreenHost {
		s += 34
	}
	return clamp(s)
}

func CodeQuality(b *model.FeatureBag) int {
	s := 62.0
	if !b.DocumentWrite {
		s += 9
	}
	if b.Integrity {
		s += 8
	}
	if !b.Eval {
		s += 7
	}
	if b.CrossOrigin {
		s += 6
	}
	if b.Noopener {
		s += 5
	}
	if !b.Doctype {
		s -= 8
	}
	if b.InlineScripts > 5 {
		s -= 6
	}
	return clamp(s)
}

func Mobile(b *model.FeatureBag) int {
	s := 48.0
	if b.Viewport {
		s += 24
	}
	s += capped(float64(b.MediaQueries)*2.8, 16)
	if b.MobileWebAppCapable {
		s += 6
	}
	if b.AppleMobileWebApp {
		s += 6
	}
	return clamp(s)
}

func capped(v, limit float64) float64 {
	return math.Min(v, limit)
}

func clamp(v float64) int {
	r := math.Round(v)
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return int(r)
}
