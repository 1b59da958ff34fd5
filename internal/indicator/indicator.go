// Package indicator implements the stateless technical indicators used by
// the signal generator. Every function is pure: identical input yields
// identical output and the input slices are never modified.
//
// Values that are undefined for lack of history are reported as NaN; use
// IsMissing to test for them.
package indicator

import "math"

// IsMissing reports whether v marks an undefined indicator value.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// EMA returns the exponential moving average of series. The first output
// equals series[0]; each following value is price*k + prev*(1-k) with
// k = 2/(span+1). The output has the same length as the input.
func EMA(series []float64, span int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	k := 2 / (float64(span) + 1)
	prev := series[0]
	out[0] = prev
	for i := 1; i < len(series); i++ {
		prev = series[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// SMA returns the simple moving average over a rolling window. Indices with
// fewer than window observations are NaN.
func SMA(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	var sum float64
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		if window > 0 && i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RSI returns the relative strength index of series. Gains and losses are
// smoothed with EMA(length). When the average loss is zero RS is taken as
// 100. The first value is NaN because no delta exists for it.
func RSI(series []float64, length int) []float64 {
	if len(series) == 0 {
		return nil
	}
	up := make([]float64, len(series)-1)
	down := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		d := series[i] - series[i-1]
		if d > 0 {
			up[i-1] = d
		} else if d < 0 {
			down[i-1] = -d
		}
	}
	avgUp := EMA(up, length)
	avgDown := EMA(down, length)

	out := make([]float64, len(series))
	out[0] = math.NaN()
	for i := range avgUp {
		rs := 100.0
		if avgDown[i] != 0 {
			rs = avgUp[i] / avgDown[i]
		}
		out[i+1] = 100 - 100/(1+rs)
	}
	return out
}

// ATR returns the EMA-smoothed average true range. The first bar's true
// range is high-low since it has no previous close.
func ATR(_, high, low, close []float64, length int) []float64 {
	tr := make([]float64, len(close))
	for i := range close {
		if i == 0 {
			tr[i] = high[i] - low[i]
			continue
		}
		t1 := high[i] - low[i]
		t2 := math.Abs(high[i] - close[i-1])
		t3 := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(t1, math.Max(t2, t3))
	}
	return EMA(tr, length)
}

// MACDResult holds the three MACD series, aligned with the input.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast)-EMA(slow), its EMA(signal) line and the
// histogram (line minus signal).
func MACD(close []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(close, fast)
	slowEMA := EMA(close, slow)
	line := make([]float64, len(close))
	for i := range close {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMA(line, signal)
	hist := make([]float64, len(close))
	for i := range line {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}

// Highest returns the maximum of series[from:to]. It returns NaN for an
// empty or out-of-range window.
func Highest(series []float64, from, to int) float64 {
	if from < 0 || to > len(series) || from >= to {
		return math.NaN()
	}
	m := series[from]
	for _, v := range series[from+1 : to] {
		if v > m {
			m = v
		}
	}
	return m
}

// Lowest returns the minimum of series[from:to], or NaN for an empty or
// out-of-range window.
func Lowest(series []float64, from, to int) float64 {
	if from < 0 || to > len(series) || from >= to {
		return math.NaN()
	}
	m := series[from]
	for _, v := range series[from+1 : to] {
		if v < m {
			m = v
		}
	}
	return m
}
