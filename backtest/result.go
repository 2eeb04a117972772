package backtest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"stockbt/data"
)

// 成交操作类型
const (
	OpEntry       = "买入"
	OpAddOn       = "补仓"
	OpFullExit    = "清仓"
	OpPartialExit = "卖出"
)

// TradeRecord 单日单票的成交明细
type TradeRecord struct {
	Operation string  `json:"operation"`
	Amount    int     `json:"amount"`
	Price     float64 `json:"price"`
	Value     float64 `json:"value"`
	Profit    float64 `json:"profit"`
}

// DailyResult 单个交易日的回测结果
type DailyResult struct {
	Date                 time.Time              `json:"date"`
	TotalProfitRate      float64                `json:"total_profit_rate"`
	TotalAssets          float64                `json:"total_assets"`
	Cash                 float64                `json:"cash"`
	MarketCap            float64                `json:"market_cap"`
	IndexTotalProfitRate float64                `json:"index_total_profit_rate"`
	TradeLog             map[string]TradeRecord `json:"trade_log"`
}

// PositionSnapshot 单只股票的持仓快照，随持仓变动更新，终局导出
type PositionSnapshot struct {
	IsHeld     bool    `json:"is_held"`
	Position   int     `json:"position"`
	CostPrice  float64 `json:"cost_price"`
	Price      float64 `json:"price"`
	Profit     float64 `json:"profit"`
	ProfitRate float64 `json:"profit_rate"`
}

// ResultSink 累积每日结果与持仓快照。每个交易日只写入一次。
type ResultSink struct {
	daily     []DailyResult
	seen      map[string]bool
	positions map[string]PositionSnapshot
}

// NewResultSink 创建空的结果汇总器
func NewResultSink() *ResultSink {
	return &ResultSink{
		seen:      make(map[string]bool),
		positions: make(map[string]PositionSnapshot),
	}
}

// Append 追加一天的结果，重复日期报错
func (s *ResultSink) Append(r DailyResult) error {
	key := r.Date.Format(data.DateLayout)
	if s.seen[key] {
		return fmt.Errorf("交易日 %s 的结果已存在", key)
	}
	s.seen[key] = true
	s.daily = append(s.daily, r)
	return nil
}

// UpdatePosition 更新某只股票的持仓快照
func (s *ResultSink) UpdatePosition(stock string, snap PositionSnapshot) {
	s.positions[stock] = snap
}

// Daily 每日结果时间序列（按写入顺序，即日期升序）
func (s *ResultSink) Daily() []DailyResult { return s.daily }

// Days 已模拟的交易日数量
func (s *ResultSink) Days() int { return len(s.daily) }

// Snapshot 全部出现过持仓的股票的终局快照
func (s *ResultSink) Snapshot() map[string]PositionSnapshot { return s.positions }

// SnapshotSymbols 快照内股票代码（升序）
func (s *ResultSink) SnapshotSymbols() []string {
	out := make([]string, 0, len(s.positions))
	for stock := range s.positions {
		out = append(out, stock)
	}
	sort.Strings(out)
	return out
}

// ToRun 转换为落库格式，trade_log序列化为JSON
func (s *ResultSink) ToRun(runID string) *data.RunRecord {
	run := &data.RunRecord{RunID: runID}
	for _, d := range s.daily {
		logJSON, err := json.Marshal(d.TradeLog)
		if err != nil {
			logJSON = []byte("{}")
		}
		run.Results = append(run.Results, data.ResultRow{
			RunID:                runID,
			TradeDate:            d.Date.Format(data.DateLayout),
			TotalProfitRate:      d.TotalProfitRate,
			TotalAssets:          d.TotalAssets,
			Cash:                 d.Cash,
			MarketCap:            d.MarketCap,
			IndexTotalProfitRate: d.IndexTotalProfitRate,
			TradeLog:             string(logJSON),
		})
	}
	for _, stock := range s.SnapshotSymbols() {
		snap := s.positions[stock]
		run.Positions = append(run.Positions, data.PositionRow{
			RunID:      runID,
			StockCode:  stock,
			IsHeld:     snap.IsHeld,
			Position:   snap.Position,
			CostPrice:  snap.CostPrice,
			Price:      snap.Price,
			Profit:     snap.Profit,
			ProfitRate: snap.ProfitRate,
		})
	}
	return run
}
