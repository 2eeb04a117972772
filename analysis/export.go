package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"stockbt/backtest"
	"stockbt/data"
)

// ExportDailyCSV 导出每日结果序列，trade_log列为JSON
func ExportDailyCSV(filename string, daily []backtest.DailyResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("创建导出文件失败: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"trade_date", "total_profit_rate", "total_assets",
		"cash", "market_cap", "index_total_profit_rate", "trade_log"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for _, d := range daily {
		logJSON, err := json.Marshal(d.TradeLog)
		if err != nil {
			logJSON = []byte("{}")
		}
		row := []string{
			d.Date.Format(data.DateLayout),
			formatFloat(d.TotalProfitRate),
			formatFloat(d.TotalAssets),
			formatFloat(d.Cash),
			formatFloat(d.MarketCap),
			formatFloat(d.IndexTotalProfitRate),
			string(logJSON),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("写入数据行失败: %w", err)
		}
	}
	return nil
}

// ExportPositionsCSV 导出终局持仓快照
func ExportPositionsCSV(filename string, sink *backtest.ResultSink) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("创建导出文件失败: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"stock_code", "is_held", "position",
		"cost_price", "price", "profit", "profit_rate"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	snapshot := sink.Snapshot()
	for _, stock := range sink.SnapshotSymbols() {
		snap := snapshot[stock]
		row := []string{
			stock,
			strconv.FormatBool(snap.IsHeld),
			strconv.Itoa(snap.Position),
			formatFloat(snap.CostPrice),
			formatFloat(snap.Price),
			formatFloat(snap.Profit),
			formatFloat(snap.ProfitRate),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("写入数据行失败: %w", err)
		}
	}
	return nil
}

// ExportSweepCSV 导出参数扫描结果（已按收益率降序）
func ExportSweepCSV(filename string, results []backtest.SweepResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("创建导出文件失败: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"profit_stop_ratio", "loss_stop_ratio", "ma_line",
		"profit_rate", "total_assets", "index_profit_rate", "exclusions", "days", "error"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for _, r := range results {
		row := []string{
			formatFloat(r.ProfitStopRatio),
			formatFloat(r.LossStopRatio),
			r.MALine,
			formatFloat(r.ProfitRate),
			formatFloat(r.TotalAssets),
			formatFloat(r.IndexProfitRate),
			strconv.Itoa(r.Exclusions),
			strconv.Itoa(r.Days),
			r.Err,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("写入数据行失败: %w", err)
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
