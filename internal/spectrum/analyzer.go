// Package spectrum 把 PCM 样本块转换为平滑、带峰值保持的频带能量值，供可视化使用。
package spectrum

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyzer 执行加窗 FFT 与频带聚合。FFT 计划按块长度缓存复用。
type Analyzer struct {
	cfg Config

	mu    sync.Mutex
	plans map[int]*fourier.FFT
	buf   []float64
	coeff []complex128
}

// NewAnalyzer 使用给定参数创建分析器。
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{
		cfg:   cfg,
		plans: make(map[int]*fourier.FFT),
	}
}

// Config 返回分析器参数。
func (a *Analyzer) Config() Config { return a.cfg }

// Analyze 分析一个样本块并更新 st。
// 块长度小于 MinChunk 时不做 FFT，只执行静音衰减并返回 false。
func (a *Analyzer) Analyze(chunk []float32, st *State) bool {
	if len(chunk) < a.cfg.MinChunk {
		a.Decay(st)
		return false
	}

	mag := a.magnitudes(chunk)
	numBins := len(mag)
	cfg := a.cfg

	for i := range st.Bands {
		lo, hi := BandRange(i, numBins, cfg)
		if lo >= numBins || hi <= lo {
			continue
		}
		var sum float64
		for _, m := range mag[lo:hi] {
			sum += m
		}
		normalized := math.Min(1, sum/float64(hi-lo)/cfg.NormDivisor)
		if normalized > st.Bands[i] {
			st.Bands[i] = st.Bands[i]*(1-cfg.Attack) + normalized*cfg.Attack
		} else {
			st.Bands[i] = st.Bands[i]*(1-cfg.Release) + normalized*cfg.Release
		}
	}

	st.push(st.Bands)
	if len(st.history) > 1 {
		weightedAverage(st.history, st.Bands)
	}

	for i, v := range st.Bands {
		if v > st.Peaks[i] {
			st.Peaks[i] = v
		} else {
			st.Peaks[i] *= cfg.PeakDecay
			st.Bands[i] = math.Max(v, st.Peaks[i])
		}
	}
	return true
}

// Decay 静音衰减：所有频带乘以 SilenceDecay，峰值与历史不变。
func (a *Analyzer) Decay(st *State) {
	for i := range st.Bands {
		st.Bands[i] *= a.cfg.SilenceDecay
	}
}

// magnitudes 返回去掉直流分量后的幅度谱，切片在下次调用前有效。
func (a *Analyzer) magnitudes(chunk []float32) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(chunk)
	plan, ok := a.plans[n]
	if !ok {
		plan = fourier.NewFFT(n)
		a.plans[n] = plan
	}
	if cap(a.buf) < n {
		a.buf = make([]float64, n)
	}
	seq := a.buf[:n]
	for i, s := range chunk {
		seq[i] = float64(s)
	}
	window.Hann(seq)

	need := n/2 + 1
	if cap(a.coeff) < need {
		a.coeff = make([]complex128, need)
	}
	coeff := plan.Coefficients(a.coeff[:need], seq)
	if len(coeff) > 1 {
		coeff = coeff[1:]
	}
	mag := make([]float64, len(coeff))
	for i, c := range coeff {
		mag[i] = math.Hypot(real(c), imag(c))
	}
	return mag
}

// weightedAverage 按 0.5 到 1.0 的线性权重（归一化后）对历史帧求加权平均，写入 dst。
// 最新的帧权重最大。
func weightedAverage(history [][]float64, dst []float64) {
	n := len(history)
	weights := make([]float64, n)
	var total float64
	for i := range weights {
		weights[i] = 0.5 + 0.5*float64(i)/float64(n-1)
		total += weights[i]
	}
	clear(dst)
	for i, frame := range history {
		w := weights[i] / total
		for j, v := range frame {
			dst[j] += v * w
		}
	}
}

// BandRange 返回第 i 个频带在 numBins 个频点中的半开区间 [lo, hi)。
// 区间可能为空，此时该频带本帧保持原值。
func BandRange(i, numBins int, cfg Config) (lo, hi int) {
	b := float64(cfg.BandCount)
	lo = int(math.Pow(float64(i)/b, cfg.BandExponent) * float64(numBins))
	hi = int(math.Pow(float64(i+1)/b, cfg.BandExponent) * float64(numBins))
	return lo, hi
}

// BandForFrequency 返回频率 hz 所在的频带序号，找不到时返回 -1。
// chunk 是分析块的样本数。
func BandForFrequency(hz float64, sampleRate, chunk int, cfg Config) int {
	if sampleRate <= 0 || chunk <= 0 {
		return -1
	}
	// 去掉直流后第 k 个频点对应 FFT 的第 k+1 个系数
	bin := int(math.Round(hz*float64(chunk)/float64(sampleRate))) - 1
	numBins := chunk / 2
	if bin < 0 || bin >= numBins {
		return -1
	}
	for i := 0; i < cfg.BandCount; i++ {
		lo, hi := BandRange(i, numBins, cfg)
		if bin >= lo && bin < hi {
			return i
		}
	}
	return -1
}

// DecayTicks 返回一个值从 1 按 factor 逐帧衰减到 threshold 以下所需的帧数。
func DecayTicks(threshold, factor float64) int {
	if threshold <= 0 || threshold >= 1 || factor <= 0 || factor >= 1 {
		return 0
	}
	return int(math.Ceil(math.Log(threshold) / math.Log(factor)))
}
