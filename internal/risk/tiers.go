package risk

// QualityTier buckets a position by its quality agent score at entry.
// The tier decides how much drop from peak the position is allowed
// before its trailing stop fires: high-quality names get room to
// recover, low-quality names are cut fast.
type QualityTier string

const (
	TierHigh   QualityTier = "HIGH"
	TierMedium QualityTier = "MEDIUM"
	TierLow    QualityTier = "LOW"
)

// TierFor maps a quality score onto its tier.
func TierFor(qualityScore float64) QualityTier {
	switch {
	case qualityScore > 70:
		return TierHigh
	case qualityScore >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

// StopThreshold returns the tier's trailing-stop threshold as a
// negative drop-from-peak fraction.
func (t QualityTier) StopThreshold() float64 {
	switch t {
	case TierHigh:
		return -0.30
	case TierMedium:
		return -0.20
	default:
		return -0.10
	}
}
