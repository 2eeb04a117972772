package analysis_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"stockbt/analysis"
	"stockbt/backtest"
)

func readAll(t *testing.T, filename string) [][]string {
	t.Helper()
	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("打开导出文件失败: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("读取导出文件失败: %v", err)
	}
	return records
}

func TestExportDailyCSV(t *testing.T) {
	t.Log("=== 每日结果导出测试 ===")

	daily := makeDaily(100000, []float64{100020, 100210}, []float64{1.0, 0.0})
	daily[1].TradeLog["600036"] = backtest.TradeRecord{
		Operation: backtest.OpFullExit, Amount: 100, Price: 12.1, Value: 1210, Profit: 210,
	}

	file := filepath.Join(t.TempDir(), "output.csv")
	if err := analysis.ExportDailyCSV(file, daily); err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	records := readAll(t, file)
	if len(records) != 3 {
		t.Fatalf("应为表头+2行数据: %d", len(records))
	}
	if records[0][0] != "trade_date" || records[0][6] != "trade_log" {
		t.Errorf("表头错误: %v", records[0])
	}
	if records[1][0] != "2024-01-02" {
		t.Errorf("首行日期错误: %v", records[1])
	}
	if records[2][6] == "{}" {
		t.Error("第二天的trade_log不应为空")
	}
}

func TestExportPositionsCSV(t *testing.T) {
	t.Log("=== 终局持仓导出测试 ===")

	sink := backtest.NewResultSink()
	sink.UpdatePosition("600036", backtest.PositionSnapshot{
		IsHeld: true, Position: 100, CostPrice: 10, Price: 10.6, Profit: 60, ProfitRate: 6,
	})
	sink.UpdatePosition("000001", backtest.PositionSnapshot{
		IsHeld: false, Position: 100, CostPrice: 10, Price: 12.1, Profit: 210, ProfitRate: 21,
	})

	file := filepath.Join(t.TempDir(), "position_log.csv")
	if err := analysis.ExportPositionsCSV(file, sink); err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	records := readAll(t, file)
	if len(records) != 3 {
		t.Fatalf("应为表头+2行数据: %d", len(records))
	}
	// 持仓按代码升序导出
	if records[1][0] != "000001" || records[2][0] != "600036" {
		t.Errorf("导出顺序应为代码升序: %v", records)
	}
	if records[1][1] != "false" || records[2][1] != "true" {
		t.Errorf("持有状态错误: %v", records)
	}
}
