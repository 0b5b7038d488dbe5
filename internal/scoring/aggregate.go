package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/model"
)

// Weights are applied in SubScoreSet.Values order and must sum to 1.0.
type Weights [10]float64

// DefaultWeights favour speed and the security and interaction dimensions over green hosting and code quality.
var DefaultWeights = Weights{
	0.13, // speed
	0.11, // accessibility
	0.10, // infrastructure
	0.09, // modern tech
	0.10, // seo / social
	0.09, // page weight
	0.12, // privacy / security
	0.07, // green hosting
	0.08, // code quality
	0.11, // mobile
}

var ErrWeightSum = errors.New("scoring weights must sum to 1.0")

func WeightsFromConfig(cfg *config.WeightsConfig) (Weights, error) {
	if cfg == nil {
		return DefaultWeights, nil
	}
	w := Weights{cfg.Speed, cfg.Accessibility, cfg.Infrastructure, cfg.ModernTech, cfg.SEOSocial, cfg.PageWeight,
		cfg.PrivacySecurity, cfg.GreenHosting, cfg.CodeQuality, cfg.Mobile}
	return w, w.Validate()
}

func (w Weights) Validate() error {
	sum := 0.0
	for _, v := range w {
		if v < 0 {
			return fmt.Errorf("negative weight %v: %w", v, ErrWeightSum)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("sum is %.4f: %w", sum, ErrWeightSum)
	}
	return nil
}

// Aggregate computes the weighted sum over raw sub-scores and rounds exactly once at the end.
func Aggregate(s model.SubScoreSet, w Weights) int {
	total := 0.0
	for i, v := range s.Values() {
		total += float64(v) * w[i]
	}
	return clamp(total)
}
