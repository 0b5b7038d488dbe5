package model

import "time"

type FetchMechanism int

const (
	Curl FetchMechanism = iota
	HeadlessBrowser
)

func (fm FetchMechanism) String() string {
	return [...]string{"curl", "headless browser"}[fm]
}

// ScanRequest is the body of POST /scan and the payload of queued scan tasks.
type ScanRequest struct {
	URL string `json:"url"`
}

// FetchResult lives for the duration of one scan and is never persisted.
type FetchResult struct {
	FinalURL           string
	StatusCode         int
	HTML               string
	Headers            Headers
	ContentLengthBytes int64
	ElapsedMs          int64
	Mechanism          FetchMechanism
	// Truncated is set when the body hit the fetcher's size cap and HTML holds only its prefix.
	Truncated bool
}

type SubScoreSet struct {
	Speed           int `json:"speed"`
	Accessibility   int `json:"accessibility"`
	Infrastructure  int `json:"infrastructure"`
	ModernTech      int `json:"modernTech"`
	SEOSocial       int `json:"seoSocial"`
	PageWeight      int `json:"pageWeight"`
	PrivacySecurity int `json:"privacySecurity"`
	GreenHosting    int `json:"greenHosting"`
	CodeQuality     int `json:"codeQuality"`
	Mobile          int `json:"mobile"`
}

// Values returns the scores in declaration order.
func (s SubScoreSet) Values() [10]int {
	return [10]int{s.Speed, s.Accessibility, s.Infrastructure, s.ModernTech, s.SEOSocial, s.PageWeight,
		s.PrivacySecurity, s.GreenHosting, s.CodeQuality, s.Mobile}
}

type ScanResult struct {
	URL             string         `json:"url"`
	Timestamp       time.Time      `json:"timestamp"`
	OverallScore    int            `json:"pscore"`
	SubScores       SubScoreSet    `json:"subScores"`
	Diagnostics     map[string]any `json:"diagnostics"`
	Cached          bool           `json:"cached,omitempty"`
	CacheAgeSeconds int64          `json:"cacheAgeSeconds,omitempty"`
}
