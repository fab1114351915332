package mathx

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// LogSumExp returns log(sum(exp(w))) computed stably.
func LogSumExp(w []float64) float64 {
	return floats.LogSumExp(w)
}

// LogMeanExp returns log(mean(exp(w))) computed stably.
func LogMeanExp(w []float64) float64 {
	return floats.LogSumExp(w) - math.Log(float64(len(w)))
}

// LogNormalize rescales unnormalized log weights so that their
// exponentials sum to one. The input slice is not modified.
func LogNormalize(w []float64) []float64 {
	z := floats.LogSumExp(w)
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v - z
	}
	return out
}

// LogLinspace returns n points spaced uniformly in log space on
// [lo, hi]. Both bounds must be positive.
func LogLinspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	llo, lhi := math.Log(lo), math.Log(hi)
	step := (lhi - llo) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Exp(llo + float64(i)*step)
	}
	return out
}

// LogChoice draws one index from the categorical distribution implied
// by the unnormalized log weights w.
//
// Entries equal to -Inf carry zero probability. At least one entry must
// be finite.
func LogChoice(rng *rand.Rand, w []float64) int {
	p := LogNormalize(w)
	u := rng.Float64()
	cum := 0.0
	for i, lp := range p {
		cum += math.Exp(lp)
		if u <= cum {
			return i
		}
	}
	// Guard against cumulative rounding leaving u slightly above cum.
	for i := len(p) - 1; i >= 0; i-- {
		if !math.IsInf(p[i], -1) {
			return i
		}
	}
	return len(p) - 1
}

// LogChoices draws n indices with replacement from the categorical
// distribution implied by the unnormalized log weights w.
func LogChoices(rng *rand.Rand, w []float64, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = LogChoice(rng, w)
	}
	return out
}

// LBeta returns the log of the Beta function log B(a, b).
func LBeta(a, b float64) float64 {
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	return la + lb - lab
}

// Lgamma returns log Gamma(x), discarding the sign (all callers pass
// positive arguments).
func Lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
