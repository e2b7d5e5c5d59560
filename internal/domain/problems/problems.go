// Package problems flags fields whose metrics cross fixed thresholds.
package problems

import "github.com/okian/formwizard/internal/domain/model"

// Default thresholds. Each rule fires when the metric is strictly greater.
const (
	DefaultAbandonmentRate = 30   // percent
	DefaultHesitationMS    = 5000 // ms
	DefaultChangeCount     = 10
)

// Thresholds configures the detector rules.
type Thresholds struct {
	AbandonmentRate int   `json:"abandonmentRate"`
	HesitationMS    int64 `json:"hesitationMs"`
	ChangeCount     int   `json:"changeCount"`
}

// DefaultThresholds returns the stock rule set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AbandonmentRate: DefaultAbandonmentRate,
		HesitationMS:    DefaultHesitationMS,
		ChangeCount:     DefaultChangeCount,
	}
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithThresholds overrides the rule thresholds. Non-positive values keep the default.
func WithThresholds(t Thresholds) Option {
	return func(d *Detector) {
		if t.AbandonmentRate > 0 {
			d.thresholds.AbandonmentRate = t.AbandonmentRate
		}
		if t.HesitationMS > 0 {
			d.thresholds.HesitationMS = t.HesitationMS
		}
		if t.ChangeCount > 0 {
			d.thresholds.ChangeCount = t.ChangeCount
		}
	}
}

// Detector classifies fields as problematic.
type Detector struct {
	thresholds Thresholds
}

// NewDetector creates a Detector with the default thresholds unless overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{thresholds: DefaultThresholds()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Thresholds returns the active rule set.
func (d *Detector) Thresholds() Thresholds { return d.thresholds }

// Detect reports every field with high abandonment or long hesitation, in
// input order. Excessive changes are flagged but never qualify a field alone.
func (d *Detector) Detect(metrics []model.FieldMetrics) []model.ProblemReport {
	out := make([]model.ProblemReport, 0)
	for _, m := range metrics {
		issues := model.Issues{
			HighAbandonment:  m.AbandonmentRate > d.thresholds.AbandonmentRate,
			LongHesitation:   m.AvgHesitation > d.thresholds.HesitationMS,
			ExcessiveChanges: m.ChangeCount > d.thresholds.ChangeCount,
		}
		if !issues.HighAbandonment && !issues.LongHesitation {
			continue
		}
		out = append(out, model.ProblemReport{FieldID: m.FieldID, Issues: issues, Metrics: m})
	}
	return out
}

// DetectProblems runs the default detector.
func DetectProblems(metrics []model.FieldMetrics) []model.ProblemReport {
	return NewDetector().Detect(metrics)
}
