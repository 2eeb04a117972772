package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadBarsCSV 从本地CSV读取日K数据，列顺序：
// stock_code,trade_date,open,high,low,close,change_value,pct_change[,ma5,ma10,ma20,ma30,ma45,ma60]
func LoadBarsCSV(filename string) ([]Bar, error) {
	records, err := readCSV(filename)
	if err != nil {
		return nil, err
	}
	var bars []Bar
	for i, rec := range records {
		if i == 0 { // 跳过表头
			continue
		}
		if len(rec) < 8 {
			continue
		}
		date, err := time.Parse(DateLayout, rec[1])
		if err != nil {
			return nil, fmt.Errorf("第%d行日期格式错误: %w", i+1, err)
		}
		b := Bar{
			StockCode:   rec[0],
			TradeDate:   date,
			Open:        parseFloat(rec[2]),
			High:        parseFloat(rec[3]),
			Low:         parseFloat(rec[4]),
			Close:       parseFloat(rec[5]),
			ChangeValue: parseFloat(rec[6]),
			PctChange:   parseFloat(rec[7]),
		}
		if len(rec) >= 14 {
			b.MA5 = parseFloat(rec[8])
			b.MA10 = parseFloat(rec[9])
			b.MA20 = parseFloat(rec[10])
			b.MA30 = parseFloat(rec[11])
			b.MA45 = parseFloat(rec[12])
			b.MA60 = parseFloat(rec[13])
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// LoadIndexCSV 从本地CSV读取指数日K，列顺序：
// index_code,trade_date,open,high,low,close,change_value,pct_change
func LoadIndexCSV(filename string) ([]IndexBar, error) {
	records, err := readCSV(filename)
	if err != nil {
		return nil, err
	}
	var bars []IndexBar
	for i, rec := range records {
		if i == 0 { // 跳过表头
			continue
		}
		if len(rec) < 8 {
			continue
		}
		date, err := time.Parse(DateLayout, rec[1])
		if err != nil {
			return nil, fmt.Errorf("第%d行日期格式错误: %w", i+1, err)
		}
		bars = append(bars, IndexBar{
			IndexCode:   rec[0],
			TradeDate:   date,
			Open:        parseFloat(rec[2]),
			High:        parseFloat(rec[3]),
			Low:         parseFloat(rec[4]),
			Close:       parseFloat(rec[5]),
			ChangeValue: parseFloat(rec[6]),
			PctChange:   parseFloat(rec[7]),
		})
	}
	return bars, nil
}

func readCSV(filename string) ([][]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("打开CSV文件失败: %w", err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取CSV文件失败: %w", err)
	}
	return records, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
