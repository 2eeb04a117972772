package analysis

import (
	"fmt"
	"math"

	"stockbt/backtest"
)

// Metrics 回测绩效指标，基于每日总资产曲线计算
type Metrics struct {
	TotalReturn      float64 // 区间总收益率
	AnnualizedReturn float64 // 年化收益率
	MaxDrawdown      float64 // 最大回撤
	Volatility       float64 // 年化波动率
	SharpeRatio      float64 // 夏普比率
	WinRate          float64 // 清仓/卖出交易的胜率
	Trades           int     // 总成交笔数
	IndexReturn      float64 // 基准指数区间收益率
	ExcessReturn     float64 // 相对基准的超额收益
}

// Calculate 由每日结果序列计算绩效指标。riskFreeRate为年化无风险利率。
func Calculate(daily []backtest.DailyResult, initialCapital, riskFreeRate float64) Metrics {
	var m Metrics
	if len(daily) == 0 || initialCapital <= 0 {
		return m
	}

	last := daily[len(daily)-1]
	m.TotalReturn = last.TotalProfitRate / 100
	m.IndexReturn = last.IndexTotalProfitRate / 100
	m.ExcessReturn = m.TotalReturn - m.IndexReturn

	// 年化按交易日折算，A股一年约242个交易日
	days := float64(len(daily))
	m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 242/days) - 1

	returns := dailyReturns(daily, initialCapital)
	m.Volatility = annualVolatility(returns)
	if m.Volatility > 0 {
		m.SharpeRatio = (m.AnnualizedReturn - riskFreeRate) / m.Volatility
	}
	m.MaxDrawdown = maxDrawdown(daily, initialCapital)
	m.Trades, m.WinRate = tradeStats(daily)
	return m
}

// dailyReturns 总资产的日收益率序列
func dailyReturns(daily []backtest.DailyResult, initialCapital float64) []float64 {
	returns := make([]float64, 0, len(daily))
	prev := initialCapital
	for _, d := range daily {
		if prev > 0 {
			returns = append(returns, (d.TotalAssets-prev)/prev)
		}
		prev = d.TotalAssets
	}
	return returns
}

func annualVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance) * math.Sqrt(242)
}

// maxDrawdown 总资产曲线的最大回撤
func maxDrawdown(daily []backtest.DailyResult, initialCapital float64) float64 {
	peak := initialCapital
	maxDD := 0.0
	for _, d := range daily {
		if d.TotalAssets > peak {
			peak = d.TotalAssets
		}
		if peak > 0 {
			dd := (peak - d.TotalAssets) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// tradeStats 统计成交笔数与卖出交易胜率
func tradeStats(daily []backtest.DailyResult) (trades int, winRate float64) {
	wins, exits := 0, 0
	for _, d := range daily {
		for _, rec := range d.TradeLog {
			trades++
			if rec.Operation == backtest.OpFullExit || rec.Operation == backtest.OpPartialExit {
				exits++
				if rec.Profit > 0 {
					wins++
				}
			}
		}
	}
	if exits > 0 {
		winRate = float64(wins) / float64(exits)
	}
	return trades, winRate
}

// PrintReport 打印绩效报告
func PrintReport(m Metrics) {
	fmt.Println("=== 回测绩效报告 ===")
	fmt.Println("--- 收益 ---")
	fmt.Printf("总收益率:   %.2f%%\n", m.TotalReturn*100)
	fmt.Printf("年化收益率: %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("基准收益率: %.2f%%\n", m.IndexReturn*100)
	fmt.Printf("超额收益:   %.2f%%\n", m.ExcessReturn*100)

	fmt.Println("\n--- 风险 ---")
	fmt.Printf("最大回撤:   %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("年化波动率: %.2f%%\n", m.Volatility*100)
	fmt.Printf("夏普比率:   %.2f\n", m.SharpeRatio)

	fmt.Println("\n--- 交易 ---")
	fmt.Printf("总成交笔数: %d\n", m.Trades)
	fmt.Printf("卖出胜率:   %.2f%%\n", m.WinRate*100)

	fmt.Println("\n--- 结论 ---")
	if m.ExcessReturn > 0 {
		fmt.Println("策略跑赢基准指数")
	} else {
		fmt.Println("策略未跑赢基准指数")
	}
	if m.MaxDrawdown > 0.2 {
		fmt.Println("最大回撤超过20%: 注意仓位控制")
	}
}
