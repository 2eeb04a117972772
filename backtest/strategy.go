package backtest

import (
	"time"

	"stockbt/data"
)

// ReEntryMode 止盈后复活方式
type ReEntryMode string

const (
	// ReEntryNone 止盈后永久排除
	ReEntryNone ReEntryMode = "none"
	// ReEntryMA 参考均线回升到清仓价之上后复活
	ReEntryMA ReEntryMode = "ma"
	// ReEntryCooldown 清仓满N个自然日后复活
	ReEntryCooldown ReEntryMode = "cooldown"
)

// Config 单次回测的全部参数
type Config struct {
	InitialCapital float64
	Start          time.Time
	End            time.Time
	IndexCode      string

	LotSize        int     // 每手股数
	MaxPositions   int     // 最大同时持仓数
	MinCashReserve float64 // 低于该现金停止建仓

	ProfitStopRatio float64 // 止盈比例，开盘价/成本价超过即清仓
	LossStopRatio   float64 // 止损比例，开盘价/成本价低于即补仓
	MaxHoldDays     int     // 持有超过N天且不亏即强制清仓，0表示关闭

	MALine   string  // 建仓参考均线字段，如 ma30
	MinPrice float64 // 建仓价格下限，0不限
	MaxPrice float64 // 建仓价格上限，0不限

	ReEntryMode         ReEntryMode
	ReEntryMALine       string
	ReEntryCooldownDays int

	Seed int64 // 股票池洗牌随机种子
}

// ActionKind 盘前持仓处理动作
type ActionKind int

const (
	ActionHold ActionKind = iota
	ActionSellAll
	ActionSellPart
	ActionAddOn
)

// Action 盘前持仓检查产生的交易意图
type Action struct {
	Kind   ActionKind
	Price  float64
	Amount int // ActionSellAll时忽略
}

// EntrySignal 建仓意图
type EntrySignal struct {
	Price  float64
	Amount int
}

// Rule 策略规则。引擎每个交易日分两个阶段调用：
// 盘前对每只持仓股调用CheckPosition，盘中对股票池逐只调用CheckEntry；
// 止盈名单内的股票先经CheckReEntry判断是否复活。
type Rule interface {
	Name() string
	CheckPosition(date time.Time, bar *data.Bar, pos *PositionEntry) Action
	CheckEntry(bar *data.Bar) (EntrySignal, bool)
	CheckReEntry(date time.Time, bar *data.Bar, rec ExclusionRecord) bool
}

// DefaultRule 默认策略：均线回踩建仓 + 比例止盈/补仓摊低成本。
// 亏损时不割肉而是补一手拉低成本价，这是策略本身的选择。
type DefaultRule struct {
	cfg Config
}

// NewDefaultRule 按配置创建默认策略
func NewDefaultRule(cfg Config) *DefaultRule {
	return &DefaultRule{cfg: cfg}
}

// Name 策略名
func (r *DefaultRule) Name() string { return "ma_pullback" }

// CheckPosition 盘前持仓检查：先判止盈，再判持有期强平，最后判补仓
func (r *DefaultRule) CheckPosition(date time.Time, bar *data.Bar, pos *PositionEntry) Action {
	cost := pos.CostPrice
	if cost <= 0 {
		return Action{Kind: ActionHold}
	}

	// 开盘价触发按开盘价成交，盘中最高价触发按触发价成交
	if bar.Open/cost >= r.cfg.ProfitStopRatio {
		return Action{Kind: ActionSellAll, Price: bar.Open}
	}
	if bar.High/cost >= r.cfg.ProfitStopRatio {
		return Action{Kind: ActionSellAll, Price: cost * r.cfg.ProfitStopRatio}
	}

	// 持有超期且不亏，强制清仓释放资金
	if r.cfg.MaxHoldDays > 0 && !pos.BuyDate.IsZero() {
		held := int(date.Sub(pos.BuyDate).Hours() / 24)
		if held >= r.cfg.MaxHoldDays && bar.Open >= cost {
			return Action{Kind: ActionSellAll, Price: bar.Open}
		}
	}

	if bar.Open/cost < r.cfg.LossStopRatio || bar.Low/cost < r.cfg.LossStopRatio {
		return Action{Kind: ActionAddOn, Price: bar.Open, Amount: r.cfg.LotSize}
	}
	return Action{Kind: ActionHold}
}

// CheckEntry 盘中建仓判断：开盘价或最低价回踩到参考均线之下，且在价格带内
func (r *DefaultRule) CheckEntry(bar *data.Bar) (EntrySignal, bool) {
	ma := bar.MA(r.cfg.MALine)
	if ma <= 0 { // 均线未计算（上市初期）不建仓
		return EntrySignal{}, false
	}
	if r.cfg.MinPrice > 0 && bar.Open < r.cfg.MinPrice {
		return EntrySignal{}, false
	}
	if r.cfg.MaxPrice > 0 && bar.Open > r.cfg.MaxPrice {
		return EntrySignal{}, false
	}
	if bar.Open <= ma || bar.Low <= ma {
		return EntrySignal{Price: bar.Open, Amount: r.cfg.LotSize}, true
	}
	return EntrySignal{}, false
}

// CheckReEntry 止盈后复活判断
func (r *DefaultRule) CheckReEntry(date time.Time, bar *data.Bar, rec ExclusionRecord) bool {
	switch r.cfg.ReEntryMode {
	case ReEntryMA:
		ma := bar.MA(r.cfg.ReEntryMALine)
		return ma > 0 && ma > rec.ExitPrice
	case ReEntryCooldown:
		days := int(date.Sub(rec.ExitDate).Hours() / 24)
		return days >= r.cfg.ReEntryCooldownDays
	}
	return false
}
