package scorer

import (
	"math"

	"github.com/sells-group/risk-cli/internal/model"
)

// FallbackDegenerateWindow is the Fallbacks key counted when a window has
// zero width and every value takes the degenerate score.
const FallbackDegenerateWindow = "degenerate_window"

// fallbacks counts sentinel substitutions by name.
type fallbacks map[string]int

// div returns num/den, or 0 with a recorded fallback when den is zero.
func (f fallbacks) div(name string, num, den float64) float64 {
	if den == 0 {
		f[name]++
		return 0
	}
	return num / den
}

func (f fallbacks) result() map[string]int {
	if len(f) == 0 {
		return nil
	}
	return f
}

// pooledWindow returns the min and max over every value in cols.
func pooledWindow(cols ...[]float64) model.Window {
	w := model.Window{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, col := range cols {
		for _, v := range col {
			w.Min = math.Min(w.Min, v)
			w.Max = math.Max(w.Max, v)
		}
	}
	if math.IsInf(w.Min, 0) {
		return model.Window{}
	}
	return w
}

// normalize rescales v onto [0, 1] within w. A degenerate window maps every
// value to degenerate.
func normalize(v float64, w model.Window, degenerate float64) float64 {
	if w.Degenerate() {
		return degenerate
	}
	return clamp((v-w.Min)/(w.Max-w.Min), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// rollingStd is the sample standard deviation of each trailing window of
// size n. Positions before the first full window are 0.
func rollingStd(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	if n < 2 {
		return out
	}
	for i := n - 1; i < len(xs); i++ {
		win := xs[i-n+1 : i+1]
		m := mean(win)
		var ss float64
		for _, x := range win {
			ss += (x - m) * (x - m)
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}
