package backtest

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stockbt/monitoring"
)

// SweepParams 参数网格。三个维度做笛卡尔积，每个组合独立跑一次完整回测。
type SweepParams struct {
	ProfitStopRatios []float64
	LossStopRatios   []float64
	MALines          []string
	Workers          int // 0表示取CPU核数的70%
}

// SweepResult 单个参数组合的回测摘要
type SweepResult struct {
	ProfitStopRatio float64 `json:"profit_stop_ratio"`
	LossStopRatio   float64 `json:"loss_stop_ratio"`
	MALine          string  `json:"ma_line"`
	ProfitRate      float64 `json:"profit_rate"`
	TotalAssets     float64 `json:"total_assets"`
	IndexProfitRate float64 `json:"index_profit_rate"`
	Exclusions      int     `json:"exclusions"`
	Days            int     `json:"days"`
	Err             string  `json:"error,omitempty"`
}

// DefaultWorkers 默认并发度：CPU核数的70%，至少1
func DefaultWorkers() int {
	n := runtime.NumCPU() * 7 / 10
	if n < 1 {
		n = 1
	}
	return n
}

// RunSweep 并发扫描参数网格。所有任务共享只读的行情数据，
// 各自持有独立的账本与结果汇总器。结果按收益率降序返回。
func RunSweep(base Config, in *Inputs, params SweepParams, log *logrus.Logger) ([]SweepResult, error) {
	var grid []Config
	for _, ps := range params.ProfitStopRatios {
		for _, ls := range params.LossStopRatios {
			for _, ma := range params.MALines {
				cfg := base
				cfg.ProfitStopRatio = ps
				cfg.LossStopRatio = ls
				cfg.MALine = ma
				grid = append(grid, cfg)
			}
		}
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("参数网格为空")
	}

	workers := params.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > len(grid) {
		workers = len(grid)
	}
	log.Infof("参数扫描启动: %d 个组合, %d 个并发任务", len(grid), workers)
	started := time.Now()

	tasks := make(chan Config)
	results := make([]SweepResult, 0, len(grid))
	var mu sync.Mutex
	var wg sync.WaitGroup

	// 子任务日志丢弃，只保留汇总；逐日日志在网格规模下没有阅读价值
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cfg := range tasks {
				res := runOne(cfg, in, quiet)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	for _, cfg := range grid {
		tasks <- cfg
	}
	close(tasks)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].ProfitRate > results[j].ProfitRate
	})
	log.Infof("参数扫描完成: 耗时 %s, 最优组合 止盈%.2f 止损%.2f %s 收益率 %.2f%%",
		time.Since(started).Round(time.Second),
		results[0].ProfitStopRatio, results[0].LossStopRatio,
		results[0].MALine, results[0].ProfitRate)
	return results, nil
}

func runOne(cfg Config, in *Inputs, log *logrus.Logger) SweepResult {
	res := SweepResult{
		ProfitStopRatio: cfg.ProfitStopRatio,
		LossStopRatio:   cfg.LossStopRatio,
		MALine:          cfg.MALine,
	}
	eng, err := NewEngine(cfg, in.Series, in.Index, in.Universe, WithLogger(log))
	if err != nil {
		res.Err = err.Error()
		monitoring.RecordSweepTask("error")
		return res
	}
	sink, err := eng.Run()
	if err != nil {
		res.Err = err.Error()
		monitoring.RecordSweepTask("error")
		return res
	}
	last := sink.Daily()[sink.Days()-1]
	res.ProfitRate = last.TotalProfitRate
	res.TotalAssets = last.TotalAssets
	res.IndexProfitRate = last.IndexTotalProfitRate
	res.Exclusions = eng.Ledger().ExclusionCount()
	res.Days = sink.Days()
	monitoring.RecordSweepTask("success")
	return res
}
