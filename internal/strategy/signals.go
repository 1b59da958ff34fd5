package strategy

import (
	"math"

	"kitetrader/internal/domain"
	"kitetrader/internal/indicator"
)

// Fixed indicator settings that are not part of the tunable parameter set.
const (
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	volumeSMAWidth = 50

	// minTrendGapATR is the minimum EMA separation, in ATR units, for a
	// trend to count.
	minTrendGapATR = 0.3
)

// Params is the tunable parameter set of the signal generator.
type Params struct {
	FastEMA          int     `json:"fast_ema"`
	SlowEMA          int     `json:"slow_ema"`
	RSILen           int     `json:"rsi_len"`
	VolMult          float64 `json:"vol_mult"`
	BreakoutLookback int     `json:"breakout_lookback"`
	ATRLen           int     `json:"atr_len"`
}

// WithDefaults returns a copy of p with zero fields replaced by the
// generator defaults (20/50/14/1.2/30/14).
func (p Params) WithDefaults() Params {
	if p.FastEMA <= 0 {
		p.FastEMA = 20
	}
	if p.SlowEMA <= 0 {
		p.SlowEMA = 50
	}
	if p.RSILen <= 0 {
		p.RSILen = 14
	}
	if p.VolMult <= 0 {
		p.VolMult = 1.2
	}
	if p.BreakoutLookback <= 0 {
		p.BreakoutLookback = 30
	}
	if p.ATRLen <= 0 {
		p.ATRLen = 14
	}
	return p
}

// DefaultBacktestParams is the parameter set the backtest command uses when
// none is configured.
func DefaultBacktestParams() Params {
	return Params{
		FastEMA:          12,
		SlowEMA:          26,
		RSILen:           14,
		VolMult:          1.15,
		BreakoutLookback: 20,
		ATRLen:           14,
	}
}

// Frame holds the indicator values for one candle. Undefined values are NaN.
type Frame struct {
	EMAFast  float64
	EMASlow  float64
	RSI      float64
	ATR      float64
	VolSMA   float64
	MACDHist float64
}

// Bar is a candle annotated with its indicators and trading signal.
// Breakout, Breakdown and VolumeSpike are informational only and never
// influence Signal.
type Bar struct {
	domain.Candle
	Frame

	Signal      domain.Signal
	Breakout    bool
	Breakdown   bool
	VolumeSpike bool
}

// Generate computes indicators and a signal for every candle. higherTF is
// an optional reference series aligned by index with candles; when it is
// non-nil a long needs close > higherTF[i] and a short close < higherTF[i].
// An index beyond the end of higherTF, or a NaN value, confirms neither.
func Generate(candles []domain.Candle, params Params, higherTF []float64) []Bar {
	p := params.WithDefaults()

	n := len(candles)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	vol := make([]float64, n)
	for i, c := range candles {
		open[i], high[i], low[i], closes[i], vol[i] = c.Open, c.High, c.Low, c.Close, c.Volume
	}

	emaFast := indicator.EMA(closes, p.FastEMA)
	emaSlow := indicator.EMA(closes, p.SlowEMA)
	rsi := indicator.RSI(closes, p.RSILen)
	atr := indicator.ATR(open, high, low, closes, p.ATRLen)
	volSMA := indicator.SMA(vol, volumeSMAWidth)
	macd := indicator.MACD(closes, macdFast, macdSlow, macdSignal)

	bars := make([]Bar, n)
	for i, c := range candles {
		b := Bar{
			Candle: c,
			Frame: Frame{
				EMAFast:  emaFast[i],
				EMASlow:  emaSlow[i],
				RSI:      rsi[i],
				ATR:      atr[i],
				VolSMA:   volSMA[i],
				MACDHist: macd.Histogram[i],
			},
		}

		if i >= p.BreakoutLookback {
			b.Breakout = c.Close > indicator.Highest(high, i-p.BreakoutLookback, i)
			b.Breakdown = c.Close < indicator.Lowest(low, i-p.BreakoutLookback, i)
		}
		if !indicator.IsMissing(volSMA[i]) && volSMA[i] != 0 {
			b.VolumeSpike = c.Volume > volSMA[i]*p.VolMult
		}

		htfLong, htfShort := true, true
		if higherTF != nil {
			ref := math.NaN()
			if i < len(higherTF) {
				ref = higherTF[i]
			}
			htfLong = c.Close > ref
			htfShort = c.Close < ref
		}

		gap := math.Abs(emaFast[i] - emaSlow[i])
		minGap := atr[i] * minTrendGapATR
		uptrend := emaFast[i] > emaSlow[i] && gap > minGap
		downtrend := emaFast[i] < emaSlow[i] && gap > minGap

		long := uptrend &&
			macd.Histogram[i] > 0 &&
			rsi[i] > 50 && rsi[i] < 75 &&
			c.Close > c.Open && c.Close > emaFast[i] &&
			htfLong

		short := downtrend &&
			macd.Histogram[i] < 0 &&
			rsi[i] < 50 && rsi[i] > 25 &&
			c.Close < c.Open && c.Close < emaFast[i] &&
			htfShort

		switch {
		case long && !short:
			b.Signal = domain.SignalLong
		case short && !long:
			b.Signal = domain.SignalShort
		}
		bars[i] = b
	}
	return bars
}

// SignalSummary counts emitted signals.
type SignalSummary struct {
	Total int `json:"total"`
	Buy   int `json:"buy"`
	Sell  int `json:"sell"`
}

// SignalCounts tallies the non-flat signals in bars.
func SignalCounts(bars []Bar) SignalSummary {
	var s SignalSummary
	for _, b := range bars {
		switch b.Signal {
		case domain.SignalLong:
			s.Buy++
		case domain.SignalShort:
			s.Sell++
		}
	}
	s.Total = s.Buy + s.Sell
	return s
}
