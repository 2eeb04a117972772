package backtest

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"stockbt/data"
	"stockbt/logger"
	"stockbt/monitoring"
)

// Engine 日线级事件驱动回测引擎。
// 每个交易日依次执行：盘前持仓检查 → 盘中建仓扫描 → T+1结算 → 收盘估值，
// 并为当天追加一条DailyResult。非交易日（无任何行情数据）直接跳过。
type Engine struct {
	cfg      Config
	series   *data.PriceSeries
	index    *data.IndexSeries
	universe []string
	rule     Rule
	ledger   *Ledger
	sink     *ResultSink
	log      *logrus.Logger

	initialIndexOpen float64
	lastIndexRate    float64

	onDay func(*DailyResult)
}

// Option 引擎可选项
type Option func(*Engine)

// WithRule 替换默认策略规则
func WithRule(r Rule) Option {
	return func(e *Engine) { e.rule = r }
}

// WithLogger 指定回测日志输出（如每次运行独立的日志文件）
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithDayCallback 每模拟完一个交易日回调一次（进度推送用）
func WithDayCallback(fn func(*DailyResult)) Option {
	return func(e *Engine) { e.onDay = fn }
}

// NewEngine 创建回测引擎。股票池按种子洗牌一次后固定遍历顺序，保证结果可复现。
func NewEngine(cfg Config, series *data.PriceSeries, index *data.IndexSeries, universe []string, opts ...Option) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if series == nil || series.Len() == 0 {
		return nil, fmt.Errorf("行情数据为空，无法回测")
	}

	shuffled := make([]string, len(universe))
	copy(shuffled, universe)
	rng := rand.New(rand.NewSource(cfg.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	e := &Engine{
		cfg:      cfg,
		series:   series,
		index:    index,
		universe: shuffled,
		ledger:   NewLedger(cfg.InitialCapital),
		sink:     NewResultSink(),
		log:      logger.GetLogger(),
	}
	e.rule = NewDefaultRule(cfg)
	for _, opt := range opts {
		opt(e)
	}

	if index != nil && !index.Empty() {
		e.initialIndexOpen = index.InitialOpen()
	} else {
		e.log.Warnf("指数 %s 数据为空，基准收益率按0处理", cfg.IndexCode)
	}
	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.InitialCapital <= 0 {
		return fmt.Errorf("初始资金必须为正: %.2f", cfg.InitialCapital)
	}
	if cfg.End.Before(cfg.Start) {
		return fmt.Errorf("回测结束日期早于开始日期: %s > %s",
			cfg.Start.Format(data.DateLayout), cfg.End.Format(data.DateLayout))
	}
	if cfg.LotSize <= 0 {
		return fmt.Errorf("每手股数必须为正: %d", cfg.LotSize)
	}
	if cfg.MaxPositions <= 0 {
		return fmt.Errorf("最大持仓数必须为正: %d", cfg.MaxPositions)
	}
	if cfg.ProfitStopRatio <= 1 {
		return fmt.Errorf("止盈比例必须大于1: %.2f", cfg.ProfitStopRatio)
	}
	if cfg.LossStopRatio <= 0 || cfg.LossStopRatio >= 1 {
		return fmt.Errorf("止损比例必须在(0,1)之间: %.2f", cfg.LossStopRatio)
	}
	if cfg.MALine == "" {
		return fmt.Errorf("建仓参考均线不能为空")
	}
	return nil
}

// Ledger 返回账本（测试与自定义规则用）
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Universe 洗牌后的股票池
func (e *Engine) Universe() []string { return e.universe }

// Run 执行完整回测。区间内没有任何交易日数据时返回明确错误，
// 不会静默产出空结果。
func (e *Engine) Run() (*ResultSink, error) {
	started := time.Now()
	e.log.Infof("开始回测: %s ~ %s, 初始资金 %.2f, 股票池 %d 只",
		e.cfg.Start.Format(data.DateLayout), e.cfg.End.Format(data.DateLayout),
		e.cfg.InitialCapital, len(e.universe))

	for d := e.cfg.Start; !d.After(e.cfg.End); d = d.AddDate(0, 0, 1) {
		e.step(d)
	}

	if e.sink.Days() == 0 {
		monitoring.RecordBacktestRun("empty", time.Since(started).Seconds())
		return nil, fmt.Errorf("回测区间 %s ~ %s 内没有任何交易日数据，请检查股票池与行情数据",
			e.cfg.Start.Format(data.DateLayout), e.cfg.End.Format(data.DateLayout))
	}

	last := e.sink.Daily()[e.sink.Days()-1]
	e.log.Infof("回测完成: %d 个交易日, 期末总资产 %.2f, 总收益率 %.2f%%, 止盈 %d 只",
		e.sink.Days(), last.TotalAssets, last.TotalProfitRate, e.ledger.ExclusionCount())
	monitoring.RecordBacktestRun("success", time.Since(started).Seconds())
	return e.sink, nil
}

// step 模拟一个自然日
func (e *Engine) step(d time.Time) {
	if !e.series.HasDate(d) {
		return // 非交易日
	}
	tradeLog := make(map[string]TradeRecord)

	e.checkPositions(d, tradeLog)
	e.scanEntries(d, tradeLog)

	// T+1结算：当日买入转为可用，清理空持仓
	e.ledger.Settle()

	marketCap := e.markToMarket(d)
	cash := e.ledger.Cash()
	totalAssets := marketCap + cash
	totalProfitRate := (totalAssets - e.cfg.InitialCapital) / e.cfg.InitialCapital * 100
	indexRate := e.indexRate(d)

	e.logf(d, "持仓市值 %.2f, 现金 %.2f, 总资产 %.2f, 总收益率 %.2f%%, 指数累计 %.2f%%",
		marketCap, cash, totalAssets, totalProfitRate, indexRate)

	r := DailyResult{
		Date:                 d,
		TotalProfitRate:      totalProfitRate,
		TotalAssets:          totalAssets,
		Cash:                 cash,
		MarketCap:            marketCap,
		IndexTotalProfitRate: indexRate,
		TradeLog:             tradeLog,
	}
	if err := e.sink.Append(r); err != nil {
		e.log.Errorf("追加每日结果失败: %v", err)
		return
	}
	if e.onDay != nil {
		e.onDay(&r)
	}
}

// checkPositions 盘前持仓检查：止盈清仓、超期强平、止损补仓
func (e *Engine) checkPositions(d time.Time, tradeLog map[string]TradeRecord) {
	for _, stock := range e.ledger.HoldingSymbols() {
		bar, ok := e.series.Bar(stock, d)
		if !ok { // 当日停牌，跳过该股
			continue
		}
		pos, ok := e.ledger.Position(stock)
		if !ok {
			continue
		}
		act := e.rule.CheckPosition(d, bar, pos)
		switch act.Kind {
		case ActionSellAll:
			cost := pos.CostPrice
			res, err := e.ledger.Sell(stock, act.Price, SellAll, d)
			if err != nil {
				e.logf(d, "持仓不足，无法清仓 %s @ %.2f", stock, act.Price)
				monitoring.RecordRejection("insufficient_position")
				continue
			}
			e.logf(d, "清仓 %s %d 股 @ %.2f, 成本 %.2f, 获利 %.2f, 剩余资金 %.2f",
				stock, res.Amount, act.Price, cost, res.Profit, e.ledger.Cash())
			tradeLog[stock] = TradeRecord{
				Operation: OpFullExit, Amount: res.Amount, Price: act.Price,
				Value: res.Revenue, Profit: res.Profit,
			}
			e.sink.UpdatePosition(stock, PositionSnapshot{
				IsHeld: false, Position: res.Amount, CostPrice: cost,
				Price: act.Price, Profit: res.Profit,
				ProfitRate: (act.Price/cost - 1) * 100,
			})
			monitoring.RecordTrade(OpFullExit)

		case ActionSellPart:
			cost := pos.CostPrice
			res, err := e.ledger.Sell(stock, act.Price, act.Amount, d)
			if err != nil {
				e.logf(d, "持仓不足，无法卖出 %s %d 股 @ %.2f", stock, act.Amount, act.Price)
				monitoring.RecordRejection("insufficient_position")
				continue
			}
			e.logf(d, "卖出 %s %d 股 @ %.2f, 获利 %.2f, 剩余资金 %.2f",
				stock, res.Amount, act.Price, res.Profit, e.ledger.Cash())
			tradeLog[stock] = TradeRecord{
				Operation: OpPartialExit, Amount: res.Amount, Price: act.Price,
				Value: res.Revenue, Profit: res.Profit,
			}
			remaining, held := e.ledger.Position(stock)
			if held {
				e.sink.UpdatePosition(stock, PositionSnapshot{
					IsHeld: remaining.Total() > 0, Position: remaining.Total(),
					CostPrice: cost, Price: act.Price,
					Profit:     (act.Price - cost) * float64(remaining.Total()),
					ProfitRate: (act.Price/cost - 1) * 100,
				})
			}
			monitoring.RecordTrade(OpPartialExit)

		case ActionAddOn:
			if err := e.ledger.Buy(stock, act.Price, act.Amount, d); err != nil {
				e.logf(d, "资金不足，无法补仓 %s %d 股 @ %.2f", stock, act.Amount, act.Price)
				monitoring.RecordRejection("insufficient_cash")
				continue
			}
			e.logf(d, "补仓 %s %d 股 @ %.2f, 摊低后成本 %.2f, 剩余资金 %.2f",
				stock, act.Amount, act.Price, pos.CostPrice, e.ledger.Cash())
			tradeLog[stock] = TradeRecord{
				Operation: OpAddOn, Amount: act.Amount, Price: act.Price,
				Value:  act.Price * float64(act.Amount),
				Profit: (bar.Close - pos.CostPrice) * float64(act.Amount),
			}
			monitoring.RecordTrade(OpAddOn)
		}
	}
}

// scanEntries 盘中建仓扫描：按洗牌后的固定顺序遍历股票池，先到先得
func (e *Engine) scanEntries(d time.Time, tradeLog map[string]TradeRecord) {
	for _, stock := range e.universe {
		if e.ledger.Cash() < e.cfg.MinCashReserve {
			e.logf(d, "现金低于 %.0f, 暂停建仓", e.cfg.MinCashReserve)
			break
		}
		if e.ledger.HoldingCount() >= e.cfg.MaxPositions {
			e.logf(d, "持仓达到上限 %d, 暂停建仓", e.cfg.MaxPositions)
			break
		}
		if _, held := e.ledger.Position(stock); held {
			continue
		}
		bar, ok := e.series.Bar(stock, d)
		if !ok {
			continue
		}
		if e.ledger.Excluded(stock) {
			rec, _ := e.ledger.Exclusion(stock)
			if !e.rule.CheckReEntry(d, bar, rec) {
				continue
			}
			e.ledger.RemoveExclusion(stock)
			e.logf(d, "%s 满足复活条件, 移出止盈名单", stock)
		}
		sig, ok := e.rule.CheckEntry(bar)
		if !ok {
			continue
		}
		if err := e.ledger.Buy(stock, sig.Price, sig.Amount, d); err != nil {
			e.logf(d, "资金不足，无法买入 %s %d 股 @ %.2f", stock, sig.Amount, sig.Price)
			monitoring.RecordRejection("insufficient_cash")
			continue
		}
		e.logf(d, "买入 %s %d 股 @ %.2f, 总费用 %.2f, 剩余资金 %.2f",
			stock, sig.Amount, sig.Price, sig.Price*float64(sig.Amount), e.ledger.Cash())
		tradeLog[stock] = TradeRecord{
			Operation: OpEntry, Amount: sig.Amount, Price: sig.Price,
			Value:  sig.Price * float64(sig.Amount),
			Profit: (bar.Close - sig.Price) * float64(sig.Amount),
		}
		monitoring.RecordTrade(OpEntry)
	}
}

// markToMarket 收盘估值。停牌股沿用最近一次收盘价，不中断整体估值。
func (e *Engine) markToMarket(d time.Time) float64 {
	marketCap := 0.0
	for _, stock := range e.ledger.HoldingSymbols() {
		pos, ok := e.ledger.Position(stock)
		if !ok {
			continue
		}
		closePrice := pos.LastClose
		if bar, has := e.series.Bar(stock, d); has {
			closePrice = bar.Close
			pos.LastClose = closePrice
		}
		if closePrice <= 0 {
			continue
		}
		profit := (closePrice - pos.CostPrice) * float64(pos.Available)
		profitRate := (closePrice/pos.CostPrice - 1) * 100
		marketCap += closePrice * float64(pos.Available)

		e.logf(d, "%s 持仓 %d, 成本 %.2f, 收盘 %.2f, 累计盈亏 %.2f, 收益率 %.2f%%",
			stock, pos.Available, pos.CostPrice, closePrice, profit, profitRate)
		e.sink.UpdatePosition(stock, PositionSnapshot{
			IsHeld: true, Position: pos.Available, CostPrice: pos.CostPrice,
			Price: closePrice, Profit: profit, ProfitRate: profitRate,
		})
	}
	return marketCap
}

// indexRate 指数累计收益率。当日缺指数行情时沿用最近已知值。
func (e *Engine) indexRate(d time.Time) float64 {
	if e.index == nil || e.index.Empty() || e.initialIndexOpen <= 0 {
		return 0
	}
	bar, ok := e.index.Bar(d)
	if !ok {
		return e.lastIndexRate
	}
	e.lastIndexRate = (bar.Close/e.initialIndexOpen - 1) * 100
	return e.lastIndexRate
}

func (e *Engine) logf(d time.Time, format string, args ...interface{}) {
	prefix := []interface{}{d.Format(data.DateLayout)}
	e.log.Infof("[%s] "+format, append(prefix, args...)...)
}
