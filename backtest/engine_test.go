package backtest_test

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"stockbt/backtest"
	"stockbt/data"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func makeBar(code, date string, open, high, low, closePrice, ma30 float64) data.Bar {
	return data.Bar{
		StockCode: code,
		TradeDate: day(date),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		MA30:      ma30,
	}
}

func makeIndexBar(code, date string, open, closePrice float64) data.IndexBar {
	return data.IndexBar{
		IndexCode: code,
		TradeDate: day(date),
		Open:      open,
		High:      closePrice,
		Low:       open,
		Close:     closePrice,
	}
}

func TestEngineBasicFlow(t *testing.T) {
	t.Log("=== 引擎基本流程测试: 建仓-持有-止盈 ===")

	bars := []data.Bar{
		// 开盘回踩均线，建仓@10
		makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
		// 正常持有
		makeBar("600036", "2024-01-03", 10.4, 10.8, 10.1, 10.6, 10.5),
		// 开盘止盈 12.1/10 >= 1.2
		makeBar("600036", "2024-01-04", 12.1, 12.3, 11.9, 12.0, 10.8),
	}
	index := []data.IndexBar{
		makeIndexBar("000300.SH", "2024-01-02", 3000, 3030),
		makeIndexBar("000300.SH", "2024-01-03", 3030, 3060),
		makeIndexBar("000300.SH", "2024-01-04", 3060, 3000),
	}

	cfg := testConfig()
	cfg.End = day("2024-01-04")
	eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(index),
		[]string{"600036"}, backtest.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("创建引擎失败: %v", err)
	}
	sink, err := eng.Run()
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	if sink.Days() != 3 {
		t.Fatalf("应有3个交易日, 实际 %d", sink.Days())
	}
	daily := sink.Daily()

	t.Run("建仓日", func(t *testing.T) {
		d := daily[0]
		rec, ok := d.TradeLog["600036"]
		if !ok || rec.Operation != backtest.OpEntry {
			t.Fatalf("首日应有买入记录: %+v", d.TradeLog)
		}
		if !almostEqual(rec.Price, 10.0) || rec.Amount != 100 {
			t.Errorf("买入明细错误: %+v", rec)
		}
		// 当日买入先结算后估值，市值按收盘价计
		if !almostEqual(d.Cash, 99000) {
			t.Errorf("建仓日现金应为99000, 实际 %.2f", d.Cash)
		}
		if !almostEqual(d.MarketCap, 1020) {
			t.Errorf("建仓日市值应为1020, 实际 %.2f", d.MarketCap)
		}
		if !almostEqual(d.TotalAssets, 100020) {
			t.Errorf("建仓日总资产应为100020, 实际 %.2f", d.TotalAssets)
		}
		if !almostEqual(d.IndexTotalProfitRate, 1.0) {
			t.Errorf("指数累计收益率应为1%%, 实际 %.4f", d.IndexTotalProfitRate)
		}
	})

	t.Run("持有日", func(t *testing.T) {
		d := daily[1]
		if len(d.TradeLog) != 0 {
			t.Errorf("持有日不应有成交: %+v", d.TradeLog)
		}
		if !almostEqual(d.TotalAssets, 99000+1060) {
			t.Errorf("持有日总资产错误: %.2f", d.TotalAssets)
		}
	})

	t.Run("止盈日", func(t *testing.T) {
		d := daily[2]
		rec, ok := d.TradeLog["600036"]
		if !ok || rec.Operation != backtest.OpFullExit {
			t.Fatalf("应有清仓记录: %+v", d.TradeLog)
		}
		if !almostEqual(rec.Price, 12.1) || !almostEqual(rec.Profit, 210) {
			t.Errorf("清仓明细错误: %+v", rec)
		}
		if !almostEqual(d.Cash, 100210) || !almostEqual(d.MarketCap, 0) {
			t.Errorf("清仓日资金状态错误: cash=%.2f marketCap=%.2f", d.Cash, d.MarketCap)
		}
		if eng.Ledger().ExclusionCount() != 1 {
			t.Error("止盈后应进入止盈名单")
		}
		snap := sink.Snapshot()["600036"]
		if snap.IsHeld {
			t.Error("清仓后快照应标记为未持有")
		}
	})

	t.Run("日期单调递增", func(t *testing.T) {
		for i := 1; i < len(daily); i++ {
			if !daily[i].Date.After(daily[i-1].Date) {
				t.Fatalf("结果日期应严格递增: %v >= %v", daily[i-1].Date, daily[i].Date)
			}
		}
	})
}

func TestEngineAddOn(t *testing.T) {
	t.Log("=== 止损补仓测试 ===")

	bars := []data.Bar{
		makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
		// 开盘 7.5/10 = 0.75 < 0.8 触发补仓
		makeBar("600036", "2024-01-03", 7.5, 8.0, 7.2, 7.8, 10.0),
	}
	cfg := testConfig()
	cfg.End = day("2024-01-03")
	eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(nil),
		[]string{"600036"}, backtest.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("创建引擎失败: %v", err)
	}
	sink, err := eng.Run()
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	rec, ok := sink.Daily()[1].TradeLog["600036"]
	if !ok || rec.Operation != backtest.OpAddOn {
		t.Fatalf("应有补仓记录: %+v", sink.Daily()[1].TradeLog)
	}
	pos, held := eng.Ledger().Position("600036")
	if !held || pos.Total() != 200 {
		t.Fatalf("补仓后总持仓应为200: %+v", pos)
	}
	// (10*100 + 7.5*100) / 200 = 8.75
	if !almostEqual(pos.CostPrice, 8.75) {
		t.Errorf("补仓后成本价应为8.75, 实际 %.4f", pos.CostPrice)
	}
}

func TestEngineEntryCaps(t *testing.T) {
	t.Log("=== 建仓上限测试 ===")

	t.Run("持仓数量上限", func(t *testing.T) {
		bars := []data.Bar{
			makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
			makeBar("000001", "2024-01-02", 5.0, 5.2, 4.9, 5.1, 5.3),
			makeBar("600519", "2024-01-02", 20.0, 20.5, 19.8, 20.2, 20.6),
		}
		cfg := testConfig()
		cfg.End = day("2024-01-02")
		cfg.MaxPositions = 2
		eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(nil),
			[]string{"600036", "000001", "600519"}, backtest.WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("创建引擎失败: %v", err)
		}
		if _, err := eng.Run(); err != nil {
			t.Fatalf("回测失败: %v", err)
		}
		if eng.Ledger().HoldingCount() != 2 {
			t.Errorf("持仓数应受上限约束为2, 实际 %d", eng.Ledger().HoldingCount())
		}
	})

	t.Run("现金保留线", func(t *testing.T) {
		bars := []data.Bar{
			makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
			makeBar("000001", "2024-01-02", 5.0, 5.2, 4.9, 5.1, 5.3),
		}
		cfg := testConfig()
		cfg.End = day("2024-01-02")
		cfg.InitialCapital = 5400
		cfg.MinCashReserve = 5000
		eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(nil),
			[]string{"600036", "000001"}, backtest.WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("创建引擎失败: %v", err)
		}
		if _, err := eng.Run(); err != nil {
			t.Fatalf("回测失败: %v", err)
		}
		// 首笔买入后现金跌破保留线，第二只不得再买
		if eng.Ledger().HoldingCount() > 1 {
			t.Errorf("低于保留线后应停止建仓, 持仓 %d", eng.Ledger().HoldingCount())
		}
	})

	t.Run("资金不足跳过不中断", func(t *testing.T) {
		bars := []data.Bar{
			makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
		}
		cfg := testConfig()
		cfg.End = day("2024-01-02")
		cfg.InitialCapital = 500
		cfg.MinCashReserve = 0
		eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(nil),
			[]string{"600036"}, backtest.WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("创建引擎失败: %v", err)
		}
		sink, err := eng.Run()
		if err != nil {
			t.Fatalf("资金不足不应中断回测: %v", err)
		}
		if eng.Ledger().HoldingCount() != 0 {
			t.Error("资金不足不应产生持仓")
		}
		if sink.Days() != 1 {
			t.Errorf("应正常产出每日结果: %d", sink.Days())
		}
	})
}

func TestEngineZeroTradingDays(t *testing.T) {
	t.Log("=== 空区间诊断测试 ===")

	bars := []data.Bar{
		makeBar("600036", "2024-06-03", 10.0, 10.3, 9.8, 10.2, 10.5),
	}
	cfg := testConfig()
	cfg.Start = day("2024-01-02")
	cfg.End = day("2024-01-31")
	eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(nil),
		[]string{"600036"}, backtest.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("创建引擎失败: %v", err)
	}
	_, err = eng.Run()
	if err == nil {
		t.Fatal("区间内无交易日应返回错误")
	}
	if !strings.Contains(err.Error(), "没有任何交易日数据") {
		t.Errorf("错误信息应说明原因: %v", err)
	}
}

func TestEngineMissingIndex(t *testing.T) {
	t.Log("=== 指数缺失降级测试 ===")

	bars := []data.Bar{
		makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
		makeBar("600036", "2024-01-03", 10.4, 10.8, 10.1, 10.6, 10.5),
	}
	index := []data.IndexBar{
		// 仅首日有指数数据，次日沿用
		makeIndexBar("000300.SH", "2024-01-02", 3000, 3030),
	}
	cfg := testConfig()
	cfg.End = day("2024-01-03")
	eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(index),
		[]string{"600036"}, backtest.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("创建引擎失败: %v", err)
	}
	sink, err := eng.Run()
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}
	daily := sink.Daily()
	if !almostEqual(daily[1].IndexTotalProfitRate, daily[0].IndexTotalProfitRate) {
		t.Errorf("指数缺失日应沿用最近值: %f vs %f",
			daily[0].IndexTotalProfitRate, daily[1].IndexTotalProfitRate)
	}

	t.Run("指数完全为空", func(t *testing.T) {
		eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(nil),
			[]string{"600036"}, backtest.WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("创建引擎失败: %v", err)
		}
		sink, err := eng.Run()
		if err != nil {
			t.Fatalf("指数为空不应阻断回测: %v", err)
		}
		for _, d := range sink.Daily() {
			if !almostEqual(d.IndexTotalProfitRate, 0) {
				t.Errorf("指数为空时基准收益率应为0: %f", d.IndexTotalProfitRate)
			}
		}
	})
}

func TestEngineExclusionBlocksReEntry(t *testing.T) {
	t.Log("=== 止盈名单阻止再买入测试 ===")

	bars := []data.Bar{
		makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
		makeBar("600036", "2024-01-03", 12.1, 12.3, 11.9, 12.0, 10.8),
		// 止盈后再次回踩均线，none模式下不得再买
		makeBar("600036", "2024-01-04", 11.0, 11.5, 10.8, 11.2, 11.3),
	}
	cfg := testConfig()
	cfg.End = day("2024-01-04")
	eng, err := backtest.NewEngine(cfg, data.NewPriceSeries(bars), data.NewIndexSeries(nil),
		[]string{"600036"}, backtest.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("创建引擎失败: %v", err)
	}
	sink, err := eng.Run()
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}
	if len(sink.Daily()[2].TradeLog) != 0 {
		t.Errorf("止盈名单内的股票不应再次买入: %+v", sink.Daily()[2].TradeLog)
	}
	if eng.Ledger().HoldingCount() != 0 {
		t.Error("不应有持仓")
	}
}

func TestEngineConfigValidation(t *testing.T) {
	t.Log("=== 配置校验测试 ===")

	series := data.NewPriceSeries([]data.Bar{
		makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
	})

	testCases := []struct {
		name   string
		mutate func(*backtest.Config)
	}{
		{"初始资金为0", func(c *backtest.Config) { c.InitialCapital = 0 }},
		{"结束早于开始", func(c *backtest.Config) { c.End = day("2023-01-01") }},
		{"每手股数为0", func(c *backtest.Config) { c.LotSize = 0 }},
		{"止盈比例不大于1", func(c *backtest.Config) { c.ProfitStopRatio = 0.9 }},
		{"止损比例越界", func(c *backtest.Config) { c.LossStopRatio = 1.5 }},
		{"均线字段为空", func(c *backtest.Config) { c.MALine = "" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := backtest.NewEngine(cfg, series, data.NewIndexSeries(nil),
				[]string{"600036"}, backtest.WithLogger(quietLogger())); err == nil {
				t.Error("非法配置应被拒绝")
			}
		})
	}
}

func TestEngineDeterministicUniverse(t *testing.T) {
	t.Log("=== 股票池洗牌可复现测试 ===")

	series := data.NewPriceSeries([]data.Bar{
		makeBar("600036", "2024-01-02", 10.0, 10.3, 9.8, 10.2, 10.5),
	})
	universe := []string{"600036", "000001", "600519", "000858", "601318"}

	cfg := testConfig()
	cfg.End = day("2024-01-02")
	e1, _ := backtest.NewEngine(cfg, series, data.NewIndexSeries(nil), universe, backtest.WithLogger(quietLogger()))
	e2, _ := backtest.NewEngine(cfg, series, data.NewIndexSeries(nil), universe, backtest.WithLogger(quietLogger()))

	u1, u2 := e1.Universe(), e2.Universe()
	for i := range u1 {
		if u1[i] != u2[i] {
			t.Fatalf("相同种子洗牌结果应一致: %v vs %v", u1, u2)
		}
	}
}
