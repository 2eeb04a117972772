// Package analysis 提供回测前的数据加工（均线计算）与回测后的
// 绩效指标计算、报表打印和CSV导出。
package analysis

import (
	"sort"

	"stockbt/data"
)

// DefaultMAPeriods 默认均线周期集合，与日K表的均线列一一对应
var DefaultMAPeriods = []int{5, 10, 20, 30, 45, 60}

// FillMA 就地计算各股票的简单移动平均线。
// 数据不足一个周期的交易日保持为0（未计算），建仓判断会跳过。
func FillMA(bars []data.Bar, periods ...int) {
	if len(periods) == 0 {
		periods = DefaultMAPeriods
	}
	byCode := make(map[string][]int)
	for i := range bars {
		byCode[bars[i].StockCode] = append(byCode[bars[i].StockCode], i)
	}
	for _, idx := range byCode {
		sort.Slice(idx, func(a, b int) bool {
			return bars[idx[a]].TradeDate.Before(bars[idx[b]].TradeDate)
		})
		for _, period := range periods {
			fillOne(bars, idx, period)
		}
	}
}

// fillOne 滚动窗口求单个周期的均线
func fillOne(bars []data.Bar, idx []int, period int) {
	sum := 0.0
	for i, bi := range idx {
		sum += bars[bi].Close
		if i >= period {
			sum -= bars[idx[i-period]].Close
		}
		if i >= period-1 {
			bars[bi].SetMA(period, sum/float64(period))
		}
	}
}
