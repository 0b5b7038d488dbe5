package scoring

import "github.com/IliaW/url-score-worker/internal/model"

// Breakdown lists the signals behind each sub-score for the diagnostics payload.
func Breakdown(b *model.FeatureBag, green GreenStatus) map[string]any {
	return map[string]any{
		"speed": map[string]any{
			"loadTimeMs":  b.LoadTimeMs,
			"scripts":     b.Scripts,
			"images":      b.Images,
			"stylesheets": b.Stylesheets,
			"videos":      b.Videos,
			"async":       b.AsyncScripts,
			"defer":       b.DeferScripts,
			"lazyLoad":    b.LazyLoad,
			"minified":    b.Minified,
		},
		"accessibility": map[string]any{
			"images":           b.Images,
			"imagesWithAlt":    b.ImagesWithAlt,
			"imagesEmptyAlt":   b.ImagesEmptyAlt,
			"imagesMissingAlt": b.ImagesMissingAlt,
			"ariaLabels":       b.AriaLabels,
			"roles":            b.Roles,
			"labels":           b.Labels,
			"h1":               b.H1,
		},
		"infrastructure": map[string]any{
			"cdn":         b.CDN,
			"edgeCache":   b.EdgeCache,
			"compression": b.Compression,
			"server":      b.Server,
		},
		"modernTech": map[string]any{
			"webAssembly":   b.WebAssembly,
			"serviceWorker": b.ServiceWorker,
			"esModules":     b.ESModules,
			"framework":     b.Framework,
		},
		"seoSocial": map[string]any{
			"title":              b.Title,
			"hasMetaDescription": b.MetaDescription != "",
			"openGraph":          b.OpenGraph,
			"canonical":          b.Canonical,
			"twitterCard":        b.TwitterCard,
		},
		"pageWeight": map[string]any{
			"sizeBytes": b.ContentLengthBytes,
			"sizeMB":    b.SizeMB(),
		},
		"privacySecurity": map[string]any{
			"trackerCount":      len(b.Trackers),
			"thirdPartyScripts": b.ThirdPartyScripts,
			"hsts":              b.HSTS,
			"csp":               b.CSP,
			"xFrameOptions":     b.XFrameOptions,
		},
		"greenHosting": map[string]any{
			"lookup": green.String(),
		},
	}
}
