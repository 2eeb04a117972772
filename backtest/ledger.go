// Package backtest 实现A股日线级事件驱动回测引擎：
// 资金与持仓账本（T+1结算）、买卖与止盈止损策略规则、按日推进的模拟循环，
// 以及每日结果与终局持仓的汇总输出。
package backtest

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientCash 资金不足，买入被拒绝
	ErrInsufficientCash = errors.New("资金不足")
	// ErrInsufficientPosition 可用持仓不足，卖出被拒绝
	ErrInsufficientPosition = errors.New("持仓不足")
)

// SellAll 卖出数量哨兵值，表示清仓全部可用持仓
const SellAll = -1

// PositionEntry 单只股票的持仓状态。
// 当日买入的数量先记入Unavailable，经过当日结算后转入Available（T+1）。
type PositionEntry struct {
	Available   int       // 可卖数量（已结算）
	Unavailable int       // 当日买入、未结算数量
	CostPrice   float64   // 加权平均成本价
	BuyDate     time.Time // 最近一次买入日期
	LastClose   float64   // 最近有行情交易日的收盘价
}

// Total 总持仓数量
func (p *PositionEntry) Total() int { return p.Available + p.Unavailable }

// Empty 是否已无持仓
func (p *PositionEntry) Empty() bool { return p.Available == 0 && p.Unavailable == 0 }

// ExclusionRecord 止盈清仓记录，用于复活判断
type ExclusionRecord struct {
	ExitPrice float64
	ExitDate  time.Time
}

// SellResult 卖出成交明细
type SellResult struct {
	Amount  int
	Revenue float64
	Profit  float64
}

// Ledger 资金与持仓账本。现金用decimal避免逐日累积的浮点误差。
type Ledger struct {
	cash       decimal.Decimal
	positions  map[string]*PositionEntry
	exclusions map[string]ExclusionRecord
}

// NewLedger 以初始资金创建账本
func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{
		cash:       decimal.NewFromFloat(initialCapital),
		positions:  make(map[string]*PositionEntry),
		exclusions: make(map[string]ExclusionRecord),
	}
}

// Cash 当前现金余额
func (l *Ledger) Cash() float64 {
	f, _ := l.cash.Float64()
	return f
}

// Position 取某只股票的持仓
func (l *Ledger) Position(stock string) (*PositionEntry, bool) {
	p, ok := l.positions[stock]
	return p, ok
}

// HoldingCount 当前持仓股票数量
func (l *Ledger) HoldingCount() int { return len(l.positions) }

// HoldingSymbols 当前持仓股票代码（升序，保证遍历顺序可复现）
func (l *Ledger) HoldingSymbols() []string {
	out := make([]string, 0, len(l.positions))
	for stock := range l.positions {
		out = append(out, stock)
	}
	sort.Strings(out)
	return out
}

// Excluded 是否在止盈名单中
func (l *Ledger) Excluded(stock string) bool {
	_, ok := l.exclusions[stock]
	return ok
}

// Exclusion 取止盈清仓记录
func (l *Ledger) Exclusion(stock string) (ExclusionRecord, bool) {
	rec, ok := l.exclusions[stock]
	return rec, ok
}

// RemoveExclusion 将股票移出止盈名单（复活）
func (l *Ledger) RemoveExclusion(stock string) { delete(l.exclusions, stock) }

// ExclusionCount 止盈名单长度
func (l *Ledger) ExclusionCount() int { return len(l.exclusions) }

// Buy 买入。资金不足时整单拒绝，不做部分成交。
// 成本价加权只计已结算的可用仓位，当日二次买入的未结算部分不参与均价，
// 该口径与历史数据保持一致，勿改。
func (l *Ledger) Buy(stock string, price float64, amount int, date time.Time) error {
	cost := price * float64(amount)
	costDec := decimal.NewFromFloat(cost)
	if costDec.GreaterThan(l.cash) {
		return ErrInsufficientCash
	}
	l.cash = l.cash.Sub(costDec)

	pos, ok := l.positions[stock]
	if !ok {
		pos = &PositionEntry{}
		l.positions[stock] = pos
	}
	pos.Unavailable += amount
	if pos.CostPrice == 0 {
		pos.CostPrice = price
	} else {
		current := pos.CostPrice * float64(pos.Available)
		pos.CostPrice = (current + cost) / float64(pos.Available+amount)
	}
	pos.BuyDate = date
	return nil
}

// Sell 卖出。amount为SellAll时清仓全部可用持仓并记入止盈名单；
// 正数为部分卖出。可用持仓不足时拒绝。
func (l *Ledger) Sell(stock string, price float64, amount int, date time.Time) (SellResult, error) {
	pos, ok := l.positions[stock]
	if !ok || pos.Available == 0 {
		return SellResult{}, ErrInsufficientPosition
	}
	if amount != SellAll && amount > pos.Available {
		return SellResult{}, ErrInsufficientPosition
	}

	if amount == SellAll {
		sold := pos.Available
		revenue := price * float64(sold)
		profit := revenue - pos.CostPrice*float64(sold)
		l.cash = l.cash.Add(decimal.NewFromFloat(revenue))
		delete(l.positions, stock)
		l.exclusions[stock] = ExclusionRecord{ExitPrice: price, ExitDate: date}
		return SellResult{Amount: sold, Revenue: revenue, Profit: profit}, nil
	}

	revenue := price * float64(amount)
	profit := revenue - pos.CostPrice*float64(amount)
	l.cash = l.cash.Add(decimal.NewFromFloat(revenue))
	pos.Available -= amount
	return SellResult{Amount: amount, Revenue: revenue, Profit: profit}, nil
}

// Settle 当日结算：全部未结算数量转入可用（T+1），并清理空持仓
func (l *Ledger) Settle() {
	for stock, pos := range l.positions {
		if pos.Unavailable > 0 {
			pos.Available += pos.Unavailable
			pos.Unavailable = 0
		}
		if pos.Empty() {
			delete(l.positions, stock)
		}
	}
}
