package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"stockbt/data"
	"stockbt/monitoring"
)

// Inputs 一次回测所需的全部输入数据
type Inputs struct {
	Series   *data.PriceSeries
	Index    *data.IndexSeries
	Universe []string
}

// LoadInputs 按配置从存储加载股票池、日K与指数数据。
// 股票池为空或行情为空视为配置/数据错误，直接返回错误；
// 指数数据缺失只降级（基准收益率按0），不阻断回测。
func LoadInputs(ctx context.Context, store data.Store, cfg Config, crit data.UniverseCriteria, log *logrus.Logger) (*Inputs, error) {
	universe, err := store.FilterUniverse(ctx, cfg.Start, crit)
	if err != nil {
		return nil, fmt.Errorf("筛选股票池失败: %w", err)
	}
	if len(universe) == 0 {
		return nil, fmt.Errorf("筛选条件下股票池为空，请放宽价格或市值区间")
	}
	log.Infof("股票池筛选完成: %d 只", len(universe))

	started := time.Now()
	bars, err := store.FetchBars(ctx, universe, cfg.Start, cfg.End)
	if err != nil {
		monitoring.RecordDataFetch("bars", "error", time.Since(started).Seconds())
		return nil, fmt.Errorf("加载日K数据失败: %w", err)
	}
	monitoring.RecordDataFetch("bars", "success", time.Since(started).Seconds())
	if len(bars) == 0 {
		return nil, fmt.Errorf("回测区间内没有日K数据")
	}
	series := data.NewPriceSeries(bars)
	log.Infof("日K数据加载完成: %d 条, 覆盖 %d 个交易日", len(bars), len(series.Dates()))

	in := &Inputs{Series: series, Universe: universe}

	started = time.Now()
	indexBars, err := store.FetchIndex(ctx, cfg.IndexCode, cfg.Start, cfg.End)
	if err != nil {
		monitoring.RecordDataFetch("index", "error", time.Since(started).Seconds())
		return nil, fmt.Errorf("加载指数数据失败: %w", err)
	}
	monitoring.RecordDataFetch("index", "success", time.Since(started).Seconds())
	if len(indexBars) == 0 {
		log.Warnf("指数 %s 在回测区间内无数据，基准收益率按0处理", cfg.IndexCode)
	}
	in.Index = data.NewIndexSeries(indexBars)
	return in, nil
}
