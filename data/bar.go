package data

import (
	"sort"
	"time"
)

// DateLayout 交易日统一日期格式
const DateLayout = "2006-01-02"

// Bar 单只股票单个交易日的日K数据，均线列为0表示未计算
type Bar struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	StockCode   string    `gorm:"column:stock_code;size:16;index:idx_code_date" json:"stock_code"`
	TradeDate   time.Time `gorm:"column:trade_date;index:idx_code_date" json:"trade_date"`
	Open        float64   `gorm:"column:open" json:"open"`
	High        float64   `gorm:"column:high" json:"high"`
	Low         float64   `gorm:"column:low" json:"low"`
	Close       float64   `gorm:"column:close" json:"close"`
	ChangeValue float64   `gorm:"column:change_value" json:"change_value"`
	PctChange   float64   `gorm:"column:pct_change" json:"pct_change"`
	MA5         float64   `gorm:"column:ma5" json:"ma5"`
	MA10        float64   `gorm:"column:ma10" json:"ma10"`
	MA20        float64   `gorm:"column:ma20" json:"ma20"`
	MA30        float64   `gorm:"column:ma30" json:"ma30"`
	MA45        float64   `gorm:"column:ma45" json:"ma45"`
	MA60        float64   `gorm:"column:ma60" json:"ma60"`
}

func (Bar) TableName() string { return "stock_daily_k" }

// MA 按字段名取均线值，未知字段或未计算时返回0
func (b *Bar) MA(line string) float64 {
	switch line {
	case "ma5":
		return b.MA5
	case "ma10":
		return b.MA10
	case "ma20":
		return b.MA20
	case "ma30":
		return b.MA30
	case "ma45":
		return b.MA45
	case "ma60":
		return b.MA60
	}
	return 0
}

// SetMA 按周期写入均线值
func (b *Bar) SetMA(period int, v float64) {
	switch period {
	case 5:
		b.MA5 = v
	case 10:
		b.MA10 = v
	case 20:
		b.MA20 = v
	case 30:
		b.MA30 = v
	case 45:
		b.MA45 = v
	case 60:
		b.MA60 = v
	}
}

// IndexBar 指数日K数据
type IndexBar struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	IndexCode   string    `gorm:"column:index_code;size:16;index:idx_index_date" json:"index_code"`
	TradeDate   time.Time `gorm:"column:trade_date;index:idx_index_date" json:"trade_date"`
	Open        float64   `gorm:"column:open" json:"open"`
	High        float64   `gorm:"column:high" json:"high"`
	Low         float64   `gorm:"column:low" json:"low"`
	Close       float64   `gorm:"column:close" json:"close"`
	ChangeValue float64   `gorm:"column:change_value" json:"change_value"`
	PctChange   float64   `gorm:"column:pct_change" json:"pct_change"`
}

func (IndexBar) TableName() string { return "index_daily_k" }

// StockInfo 股票基本信息，市值单位为亿元
type StockInfo struct {
	StockCode string  `gorm:"column:stock_code;primaryKey;size:16" json:"stock_code"`
	Name      string  `gorm:"column:name;size:32" json:"name"`
	Region    string  `gorm:"column:region;size:32" json:"region"`
	MarketCap float64 `gorm:"column:market_cap" json:"market_cap"`
}

func (StockInfo) TableName() string { return "stock_info" }

// PriceSeries 按(股票,日期)索引的日K序列
type PriceSeries struct {
	bars  map[string]map[string]*Bar
	dates []string
}

// NewPriceSeries 构建价格序列索引，同一(股票,日期)后出现的行覆盖先出现的行
func NewPriceSeries(bars []Bar) *PriceSeries {
	s := &PriceSeries{bars: make(map[string]map[string]*Bar)}
	dateSet := make(map[string]bool)
	for i := range bars {
		b := &bars[i]
		key := b.TradeDate.Format(DateLayout)
		byDate, ok := s.bars[b.StockCode]
		if !ok {
			byDate = make(map[string]*Bar)
			s.bars[b.StockCode] = byDate
		}
		byDate[key] = b
		dateSet[key] = true
	}
	for d := range dateSet {
		s.dates = append(s.dates, d)
	}
	sort.Strings(s.dates)
	return s
}

// Bar 取某只股票某个交易日的行情
func (s *PriceSeries) Bar(stock string, date time.Time) (*Bar, bool) {
	byDate, ok := s.bars[stock]
	if !ok {
		return nil, false
	}
	b, ok := byDate[date.Format(DateLayout)]
	return b, ok
}

// HasDate 判断某天是否为交易日（至少有一行数据）
func (s *PriceSeries) HasDate(date time.Time) bool {
	key := date.Format(DateLayout)
	i := sort.SearchStrings(s.dates, key)
	return i < len(s.dates) && s.dates[i] == key
}

// Dates 返回所有交易日（升序）
func (s *PriceSeries) Dates() []string {
	out := make([]string, len(s.dates))
	copy(out, s.dates)
	return out
}

// Symbols 返回序列中出现过的全部股票代码（升序）
func (s *PriceSeries) Symbols() []string {
	out := make([]string, 0, len(s.bars))
	for code := range s.bars {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Len 数据总行数
func (s *PriceSeries) Len() int {
	n := 0
	for _, byDate := range s.bars {
		n += len(byDate)
	}
	return n
}

// IndexSeries 指数日K序列
type IndexSeries struct {
	bars  map[string]*IndexBar
	first *IndexBar
}

// NewIndexSeries 构建指数序列，first为区间内最早一根K线
func NewIndexSeries(bars []IndexBar) *IndexSeries {
	s := &IndexSeries{bars: make(map[string]*IndexBar)}
	for i := range bars {
		b := &bars[i]
		s.bars[b.TradeDate.Format(DateLayout)] = b
		if s.first == nil || b.TradeDate.Before(s.first.TradeDate) {
			s.first = b
		}
	}
	return s
}

// Bar 取某个交易日的指数行情
func (s *IndexSeries) Bar(date time.Time) (*IndexBar, bool) {
	b, ok := s.bars[date.Format(DateLayout)]
	return b, ok
}

// InitialOpen 区间首日开盘价，作为指数累计收益率基准
func (s *IndexSeries) InitialOpen() float64 {
	if s.first == nil {
		return 0
	}
	return s.first.Open
}

// Empty 指数数据是否为空
func (s *IndexSeries) Empty() bool { return len(s.bars) == 0 }
