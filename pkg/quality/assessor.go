// Package quality implements the quality assessor: a five-factor
// weighted score mapping a task's context to a {low, medium, high}
// quality tier, with a caller-requested quality-target override.
package quality

import "github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"

type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Subscription is the factor-mapping input for the subscription
// factor; the allocator's resources.SubscriptionTier is the
// authoritative type elsewhere, duplicated here as a plain string
// enum to avoid an import cycle (resources already imports quality
// for Tier).
type Subscription string

const (
	SubscriptionFree     Subscription = "free"
	SubscriptionStandard Subscription = "standard"
	SubscriptionPremium  Subscription = "premium"
)

// SubscriptionFactor maps a subscription tier to its factor score.
func SubscriptionFactor(s Subscription) float64 {
	switch s {
	case SubscriptionPremium:
		return 1.0
	case SubscriptionStandard:
		return 0.5
	default:
		return 0.25
	}
}

// PreferenceFactor maps a caller's stated preference to its score.
func PreferenceFactor(pref string) float64 {
	switch pref {
	case "quality":
		return 0.8
	case "speed":
		return 0.2
	default:
		return 0.5 // "balanced" or unspecified
	}
}

// ResourceFactor combines live CPU/memory/GPU availability (0..1
// each) into one resource-factor score, weighting GPU highest since
// these are ML workloads.
func ResourceFactor(cpuAvailability, memAvailability, gpuAvailability float64) float64 {
	return 0.3*clamp01(cpuAvailability) + 0.3*clamp01(memAvailability) + 0.4*clamp01(gpuAvailability)
}

// HistoryFactor combines counts of prior tier selections into one
// history-factor score, weighting each tier by its own quality value.
func HistoryFactor(lowCount, mediumCount, highCount int) float64 {
	total := lowCount + mediumCount + highCount
	if total == 0 {
		return 0.5
	}
	weighted := float64(lowCount)*0.25 + float64(mediumCount)*0.5 + float64(highCount)*0.75
	return weighted / float64(total)
}

// Weights controls how much each factor contributes to the final
// score; DefaultWeights matches {input:0.25, resources:0.3,
// subscription:0.3, history:0.1, preference:0.05} and sums to 1.0.
type Weights struct {
	Input        float64
	Resources    float64
	Subscription float64
	History      float64
	Preference   float64
}

func DefaultWeights() Weights {
	return Weights{
		Input:        0.25,
		Resources:    0.30,
		Subscription: 0.30,
		History:      0.10,
		Preference:   0.05,
	}
}

// Thresholds are the score cutoffs (0..1) separating tiers. A score
// below Medium is Low; below High is Medium; otherwise High.
type Thresholds struct {
	Medium float64
	High   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 0.4, High: 0.7}
}

// Input is the evidence the assessor scores, one already-normalized
// ([0,1]) field per factor. QualityTarget and AllowedTiers, when set,
// short-circuit the weighted assessment: a concrete requested tier is
// honored if the subscription allows it, otherwise the highest
// allowed tier is returned.
type Input struct {
	InputQuality     float64
	ResourceHeadroom float64
	SubscriptionTier float64
	SuccessHistory   float64
	UserPreference   float64

	QualityTarget *Tier
	AllowedTiers  []Tier // highest-first, as resources.AllowedTiers returns
}

// Assessment is the scored result.
type Assessment struct {
	Score float64
	Tier  Tier
}

type Assessor struct {
	weights    Weights
	thresholds Thresholds
}

func New(weights Weights, thresholds Thresholds) *Assessor {
	return &Assessor{weights: weights, thresholds: thresholds}
}

func NewDefault() *Assessor {
	return New(DefaultWeights(), DefaultThresholds())
}

// Assess computes the weighted score and maps it to a tier, honoring
// a caller-requested quality target first.
func (a *Assessor) Assess(in Input) Assessment {
	if in.QualityTarget != nil {
		if tierAllowed(*in.QualityTarget, in.AllowedTiers) {
			return Assessment{Score: 1.0, Tier: *in.QualityTarget}
		}
		if len(in.AllowedTiers) > 0 {
			return Assessment{Score: 1.0, Tier: in.AllowedTiers[0]}
		}
	}

	score := clamp01(in.InputQuality)*a.weights.Input +
		clamp01(in.ResourceHeadroom)*a.weights.Resources +
		clamp01(in.SubscriptionTier)*a.weights.Subscription +
		clamp01(in.SuccessHistory)*a.weights.History +
		clamp01(in.UserPreference)*a.weights.Preference

	totalWeight := a.weights.Input + a.weights.Resources + a.weights.Subscription + a.weights.History + a.weights.Preference
	if totalWeight > 0 {
		score /= totalWeight
	}

	tier := TierLow
	if score >= a.thresholds.High {
		tier = TierHigh
	} else if score >= a.thresholds.Medium {
		tier = TierMedium
	}
	return Assessment{Score: score, Tier: tier}
}

func tierAllowed(tier Tier, allowed []Tier) bool {
	for _, t := range allowed {
		if t == tier {
			return true
		}
	}
	return false
}

// InputFromParameters extracts assessor Input from a task's parameter
// map using the same best-effort accessor style as
// BaseExecutor.GetExtString/GetExtInt in the task package — a missing
// factor defaults to a neutral 0.5 rather than zeroing the score out.
func InputFromParameters(params value.Map) Input {
	return Input{
		InputQuality:     orDefault(params, "input_quality"),
		ResourceHeadroom: orDefault(params, "resource_headroom"),
		SubscriptionTier: orDefault(params, "subscription_tier"),
		SuccessHistory:   orDefault(params, "success_history"),
		UserPreference:   orDefault(params, "user_preference"),
	}
}

func orDefault(params value.Map, key string) float64 {
	v, ok := params[key]
	if !ok {
		return 0.5
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0.5
	}
	return n
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
