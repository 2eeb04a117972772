package analysis_test

import (
	"math"
	"testing"
	"time"

	"stockbt/analysis"
	"stockbt/backtest"
)

func makeDaily(initial float64, assets []float64, indexRates []float64) []backtest.DailyResult {
	base, _ := time.Parse("2006-01-02", "2024-01-02")
	out := make([]backtest.DailyResult, len(assets))
	for i, a := range assets {
		out[i] = backtest.DailyResult{
			Date:                 base.AddDate(0, 0, i),
			TotalAssets:          a,
			TotalProfitRate:      (a - initial) / initial * 100,
			IndexTotalProfitRate: indexRates[i],
			TradeLog:             map[string]backtest.TradeRecord{},
		}
	}
	return out
}

func TestCalculateMetrics(t *testing.T) {
	t.Log("=== 绩效指标计算测试 ===")

	initial := 100000.0
	daily := makeDaily(initial,
		[]float64{101000, 99000, 102000, 104000},
		[]float64{0.5, -0.2, 0.8, 1.0})
	daily[2].TradeLog["600036"] = backtest.TradeRecord{Operation: backtest.OpFullExit, Profit: 200}
	daily[3].TradeLog["000001"] = backtest.TradeRecord{Operation: backtest.OpFullExit, Profit: -100}
	daily[3].TradeLog["600519"] = backtest.TradeRecord{Operation: backtest.OpEntry, Profit: 10}

	m := analysis.Calculate(daily, initial, 0.03)

	t.Run("收益指标", func(t *testing.T) {
		if math.Abs(m.TotalReturn-0.04) > 1e-9 {
			t.Errorf("总收益率应为4%%: %.4f", m.TotalReturn)
		}
		if math.Abs(m.IndexReturn-0.01) > 1e-9 {
			t.Errorf("基准收益率应为1%%: %.4f", m.IndexReturn)
		}
		if math.Abs(m.ExcessReturn-0.03) > 1e-9 {
			t.Errorf("超额收益应为3%%: %.4f", m.ExcessReturn)
		}
		if m.AnnualizedReturn <= m.TotalReturn {
			t.Error("4天赚4%的年化收益应远高于总收益")
		}
	})

	t.Run("最大回撤", func(t *testing.T) {
		// 峰值101000回落到99000
		want := (101000.0 - 99000.0) / 101000.0
		if math.Abs(m.MaxDrawdown-want) > 1e-9 {
			t.Errorf("最大回撤应为%.4f: %.4f", want, m.MaxDrawdown)
		}
	})

	t.Run("交易统计", func(t *testing.T) {
		if m.Trades != 3 {
			t.Errorf("总成交笔数应为3: %d", m.Trades)
		}
		// 2笔卖出1笔盈利
		if math.Abs(m.WinRate-0.5) > 1e-9 {
			t.Errorf("胜率应为50%%: %.4f", m.WinRate)
		}
	})

	t.Run("波动率与夏普", func(t *testing.T) {
		if m.Volatility <= 0 {
			t.Errorf("波动率应为正: %.4f", m.Volatility)
		}
		if m.SharpeRatio == 0 {
			t.Error("夏普比率应已计算")
		}
	})
}

func TestCalculateEdgeCases(t *testing.T) {
	t.Log("=== 绩效指标边界测试 ===")

	t.Run("空序列", func(t *testing.T) {
		m := analysis.Calculate(nil, 100000, 0.03)
		if m.TotalReturn != 0 || m.Trades != 0 {
			t.Errorf("空序列应返回零值: %+v", m)
		}
	})

	t.Run("单日序列", func(t *testing.T) {
		daily := makeDaily(100000, []float64{100500}, []float64{0.1})
		m := analysis.Calculate(daily, 100000, 0.03)
		if math.Abs(m.TotalReturn-0.005) > 1e-9 {
			t.Errorf("单日总收益率错误: %.4f", m.TotalReturn)
		}
		if m.Volatility != 0 {
			t.Errorf("单日序列无法计算波动率: %.4f", m.Volatility)
		}
	})

	t.Run("无卖出交易胜率为0", func(t *testing.T) {
		daily := makeDaily(100000, []float64{100500, 101000}, []float64{0, 0})
		daily[0].TradeLog["600036"] = backtest.TradeRecord{Operation: backtest.OpEntry}
		m := analysis.Calculate(daily, 100000, 0.03)
		if m.WinRate != 0 {
			t.Errorf("没有卖出时胜率应为0: %.4f", m.WinRate)
		}
		if m.Trades != 1 {
			t.Errorf("成交笔数应为1: %d", m.Trades)
		}
	})
}
