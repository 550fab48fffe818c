package domain

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultSimulations 默认模拟路径数
	DefaultSimulations = 10000
	// DefaultHorizon 默认模拟天数
	DefaultHorizon = 252

	sampleSize = 100

	// maxGrowthMultiple 单条路径终值相对初始值的绝对上限，超过后停止复利
	maxGrowthMultiple = 1e9
)

// MonteCarloPercentiles 输出的分位点
var MonteCarloPercentiles = []int{1, 5, 10, 25, 50, 75, 90, 95, 99}

// MonteCarloResult 蒙特卡洛模拟输出结果
type MonteCarloResult struct {
	InitialValue   float64            `json:"initial_value"`
	Horizon        int                `json:"horizon"`
	PathsRequested int                `json:"paths_requested"`
	PathsCompleted int                `json:"paths_completed"`
	Partial        bool               `json:"partial"`
	CappedPaths    int                `json:"capped_paths"` // 触及增长上限的路径数
	Simulations    []float64          `json:"simulations"` // 排序后的前 100 个终值
	Percentiles    map[int]float64    `json:"percentiles"`
	ExpectedValue  float64            `json:"expected_value"`
	Probabilities  map[string]float64 `json:"probabilities"`
	Duration       time.Duration      `json:"duration"`
}

// MonteCarloSimulator 组合终值蒙特卡洛模拟器
// 每条路径使用 (seed, 路径序号) 初始化独立的 PCG 随机源，结果与并发度无关
type MonteCarloSimulator struct {
	calc    *RiskMetricsCalculator
	seed    uint64
	workers int
}

// NewMonteCarloSimulator 创建模拟器，workers <= 0 时使用 GOMAXPROCS
func NewMonteCarloSimulator(calc *RiskMetricsCalculator, seed uint64, workers int) *MonteCarloSimulator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &MonteCarloSimulator{calc: calc, seed: seed, workers: workers}
}

// Simulate 以历史收益率的均值与波动率生成正态日收益路径。
// ctx 到期时返回已完成路径上的估计值并标记 Partial；一条路径都未完成时返回 ctx 错误
func (s *MonteCarloSimulator) Simulate(ctx context.Context, initialValue float64, returns []float64, paths, horizon int) (*MonteCarloResult, error) {
	start := time.Now()
	if paths <= 0 {
		paths = DefaultSimulations
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	var mean float64
	if len(returns) > 0 {
		mean = finiteOr(stat.Mean(returns, nil), 0)
	}
	dailyVol := s.calc.Volatility(returns) / math.Sqrt(TradingDaysPerYear)

	workers := min(s.workers, paths)
	chunk := (paths + workers - 1) / workers
	results := make([][]float64, workers)
	capped := make([]int, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, paths)
		g.Go(func() error {
			out := make([]float64, 0, max(hi-lo, 0))
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					break
				}
				v, hit := s.path(uint64(i), initialValue, mean, dailyVol, horizon)
				if hit {
					capped[w]++
				}
				out = append(out, v)
			}
			slices.Sort(out)
			results[w] = out
			return nil
		})
	}
	_ = g.Wait()

	values := mergeSorted(results)
	if len(values) == 0 {
		return nil, ctx.Err()
	}

	res := summarize(values, initialValue)
	res.Horizon = horizon
	res.PathsRequested = paths
	res.PathsCompleted = len(values)
	res.Partial = len(values) < paths
	for _, c := range capped {
		res.CappedPaths += c
	}
	res.Duration = time.Since(start)
	return res, nil
}

// path 生成单条路径的终值。|v| 达到 initial*maxGrowthMultiple 时截断并返回 capped
func (s *MonteCarloSimulator) path(index uint64, initial, mean, vol float64, horizon int) (float64, bool) {
	rng := rand.New(rand.NewPCG(s.seed, index))
	ceiling := math.Abs(initial) * maxGrowthMultiple
	v := initial
	for d := 0; d < horizon; d++ {
		v *= 1 + mean + vol*rng.NormFloat64()
		if math.Abs(v) >= ceiling && ceiling > 0 {
			return math.Copysign(ceiling, v), true
		}
	}
	return v, false
}

func summarize(sorted []float64, initial float64) *MonteCarloResult {
	n := len(sorted)
	res := &MonteCarloResult{
		InitialValue:  initial,
		Simulations:   slices.Clone(sorted[:min(sampleSize, n)]),
		Percentiles:   make(map[int]float64, len(MonteCarloPercentiles)),
		ExpectedValue: finiteOr(stat.Mean(sorted, nil), initial),
	}
	for _, p := range MonteCarloPercentiles {
		idx := int(math.Floor(float64(p) / 100 * float64(n)))
		idx = min(max(idx, 0), n-1)
		res.Percentiles[p] = sorted[idx]
	}

	var profit, loss, loss10, loss20, gain10, gain20 int
	for _, v := range sorted {
		if v > initial {
			profit++
		}
		if v < initial {
			loss++
		}
		if v <= initial*0.9 {
			loss10++
		}
		if v <= initial*0.8 {
			loss20++
		}
		if v >= initial*1.1 {
			gain10++
		}
		if v >= initial*1.2 {
			gain20++
		}
	}
	frac := func(c int) float64 { return float64(c) / float64(n) }
	res.Probabilities = map[string]float64{
		"profit":     frac(profit),
		"loss":       frac(loss),
		"loss_10pct": frac(loss10),
		"loss_20pct": frac(loss20),
		"gain_10pct": frac(gain10),
		"gain_20pct": frac(gain20),
	}
	return res
}

// mergeSorted 合并各 worker 已排序的结果
func mergeSorted(parts [][]float64) []float64 {
	for len(parts) > 1 {
		next := make([][]float64, 0, (len(parts)+1)/2)
		for i := 0; i < len(parts); i += 2 {
			if i+1 == len(parts) {
				next = append(next, parts[i])
				continue
			}
			next = append(next, merge2(parts[i], parts[i+1]))
		}
		parts = next
	}
	if len(parts) == 0 {
		return nil
	}
	return parts[0]
}

func merge2(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
