package analysis_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"stockbt/analysis"
	"stockbt/data"
)

func makeCloseBars(code string, closes []float64) []data.Bar {
	base, _ := time.Parse(data.DateLayout, "2024-01-01")
	bars := make([]data.Bar, len(closes))
	for i, c := range closes {
		bars[i] = data.Bar{
			StockCode: code,
			TradeDate: base.AddDate(0, 0, i),
			Close:     c,
		}
	}
	return bars
}

func TestFillMA(t *testing.T) {
	t.Log("=== 均线计算测试 ===")

	t.Run("五日均线", func(t *testing.T) {
		bars := makeCloseBars("600036", []float64{1, 2, 3, 4, 5, 6, 7})
		analysis.FillMA(bars, 5)

		// 前4天数据不足，保持为0
		for i := 0; i < 4; i++ {
			if bars[i].MA5 != 0 {
				t.Errorf("第%d天数据不足应为0: %.2f", i+1, bars[i].MA5)
			}
		}
		// 第5天: (1+2+3+4+5)/5 = 3
		if math.Abs(bars[4].MA5-3) > 1e-9 {
			t.Errorf("第5天MA5应为3: %.4f", bars[4].MA5)
		}
		// 第7天: (3+4+5+6+7)/5 = 5
		if math.Abs(bars[6].MA5-5) > 1e-9 {
			t.Errorf("第7天MA5应为5: %.4f", bars[6].MA5)
		}
	})

	t.Run("乱序输入按日期排序", func(t *testing.T) {
		bars := makeCloseBars("600036", []float64{1, 2, 3, 4, 5})
		bars[0], bars[4] = bars[4], bars[0]
		analysis.FillMA(bars, 5)
		for _, b := range bars {
			if b.TradeDate.Format(data.DateLayout) == "2024-01-05" {
				if math.Abs(b.MA5-3) > 1e-9 {
					t.Errorf("乱序输入计算错误: %.4f", b.MA5)
				}
			}
		}
	})

	t.Run("多只股票互不干扰", func(t *testing.T) {
		bars := append(
			makeCloseBars("600036", []float64{10, 10, 10, 10, 10}),
			makeCloseBars("000001", []float64{20, 20, 20, 20, 20})...)
		analysis.FillMA(bars, 5)
		for _, b := range bars {
			if b.MA5 == 0 {
				continue
			}
			want := 10.0
			if b.StockCode == "000001" {
				want = 20.0
			}
			if math.Abs(b.MA5-want) > 1e-9 {
				t.Errorf("%s MA5错误: %.4f", b.StockCode, b.MA5)
			}
		}
	})

	t.Run("默认周期集合", func(t *testing.T) {
		closes := make([]float64, 60)
		for i := range closes {
			closes[i] = float64(i + 1)
		}
		bars := makeCloseBars("600036", closes)
		analysis.FillMA(bars)

		last := bars[59]
		for _, period := range analysis.DefaultMAPeriods {
			// 末日均线 = (60-period+1 + ... + 60)/period
			want := float64(60+60-period+1) / 2
			got := last.MA(fmt.Sprintf("ma%d", period))
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("ma%d末日值应为%.2f: %.4f", period, want, got)
			}
		}
	})
}
