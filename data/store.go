package data

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// UniverseCriteria 股票池筛选条件，市值单位为亿元，零值表示不限制
type UniverseCriteria struct {
	MinPrice     float64
	MaxPrice     float64
	MinMarketCap float64
	MaxMarketCap float64
	Region       string
}

// ResultRow 每日回测结果持久化行
type ResultRow struct {
	ID                   uint    `gorm:"primaryKey" json:"-"`
	RunID                string  `gorm:"column:run_id;size:32;index" json:"run_id"`
	TradeDate            string  `gorm:"column:trade_date;size:10" json:"trade_date"`
	TotalProfitRate      float64 `gorm:"column:total_profit_rate" json:"total_profit_rate"`
	TotalAssets          float64 `gorm:"column:total_assets" json:"total_assets"`
	Cash                 float64 `gorm:"column:cash" json:"cash"`
	MarketCap            float64 `gorm:"column:market_cap" json:"market_cap"`
	IndexTotalProfitRate float64 `gorm:"column:index_total_profit_rate" json:"index_total_profit_rate"`
	TradeLog             string  `gorm:"column:trade_log;type:text" json:"trade_log"`
}

func (ResultRow) TableName() string { return "backtest_result" }

// PositionRow 终局持仓快照持久化行
type PositionRow struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	RunID      string  `gorm:"column:run_id;size:32;index" json:"run_id"`
	StockCode  string  `gorm:"column:stock_code;size:16" json:"stock_code"`
	IsHeld     bool    `gorm:"column:is_held" json:"is_held"`
	Position   int     `gorm:"column:position" json:"position"`
	CostPrice  float64 `gorm:"column:cost_price" json:"cost_price"`
	Price      float64 `gorm:"column:price" json:"price"`
	Profit     float64 `gorm:"column:profit" json:"profit"`
	ProfitRate float64 `gorm:"column:profit_rate" json:"profit_rate"`
}

func (PositionRow) TableName() string { return "backtest_position" }

// RunRecord 一次完整回测的落库内容
type RunRecord struct {
	RunID     string
	Results   []ResultRow
	Positions []PositionRow
}

// Store 回测引擎依赖的数据访问能力，引擎自身不建立任何连接
type Store interface {
	// FetchBars 拉取若干股票在区间内的日K，按日期升序
	FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]Bar, error)
	// FetchIndex 拉取指数在区间内的日K，按日期升序
	FetchIndex(ctx context.Context, code string, start, end time.Time) ([]IndexBar, error)
	// FilterUniverse 按价格与市值条件筛选某交易日的可交易股票池
	FilterUniverse(ctx context.Context, date time.Time, c UniverseCriteria) ([]string, error)
	// SaveRun 一次性落库回测结果（时间序列+终局持仓）
	SaveRun(ctx context.Context, run *RunRecord) error
}

// GormStore 基于GORM的数据存储实现，支持sqlite与mysql
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 打开数据库并自动迁移表结构
func NewGormStore(driver, dsn string, maxOpen, maxIdle int, logLevel string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", driver)
	}

	level := gormlogger.Silent
	switch logLevel {
	case "error":
		level = gormlogger.Error
	case "warn":
		level = gormlogger.Warn
	case "info":
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}

	if err := db.AutoMigrate(
		&Bar{},
		&IndexBar{},
		&StockInfo{},
		&ResultRow{},
		&PositionRow{},
	); err != nil {
		return nil, fmt.Errorf("自动迁移表结构失败: %w", err)
	}

	return &GormStore{db: db}, nil
}

// FetchBars 拉取日K数据
func (s *GormStore) FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]Bar, error) {
	var bars []Bar
	err := s.db.WithContext(ctx).
		Where("stock_code IN ? AND trade_date >= ? AND trade_date <= ?", symbols, start, end).
		Order("trade_date ASC").
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("查询日K数据失败: %w", err)
	}
	return bars, nil
}

// FetchIndex 拉取指数日K数据
func (s *GormStore) FetchIndex(ctx context.Context, code string, start, end time.Time) ([]IndexBar, error) {
	var bars []IndexBar
	err := s.db.WithContext(ctx).
		Where("index_code = ? AND trade_date >= ? AND trade_date <= ?", code, start, end).
		Order("trade_date ASC").
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("查询指数数据失败: %w", err)
	}
	return bars, nil
}

// FilterUniverse 先按当日收盘价过滤，再按股票信息表的市值与板块过滤
func (s *GormStore) FilterUniverse(ctx context.Context, date time.Time, c UniverseCriteria) ([]string, error) {
	query := s.db.WithContext(ctx).Model(&Bar{}).
		Where("trade_date = ?", date)
	if c.MinPrice > 0 {
		query = query.Where("close >= ?", c.MinPrice)
	}
	if c.MaxPrice > 0 {
		query = query.Where("close <= ?", c.MaxPrice)
	}

	var codes []string
	if err := query.Order("stock_code ASC").Pluck("stock_code", &codes).Error; err != nil {
		return nil, fmt.Errorf("按价格筛选股票池失败: %w", err)
	}
	if len(codes) == 0 {
		return codes, nil
	}

	if c.MinMarketCap <= 0 && c.MaxMarketCap <= 0 && c.Region == "" {
		return codes, nil
	}

	info := s.db.WithContext(ctx).Model(&StockInfo{}).
		Where("stock_code IN ?", codes)
	if c.MinMarketCap > 0 {
		info = info.Where("market_cap >= ?", c.MinMarketCap)
	}
	if c.MaxMarketCap > 0 {
		info = info.Where("market_cap <= ?", c.MaxMarketCap)
	}
	if c.Region != "" {
		info = info.Where("region = ?", c.Region)
	}

	var filtered []string
	if err := info.Order("stock_code ASC").Pluck("stock_code", &filtered).Error; err != nil {
		return nil, fmt.Errorf("按市值筛选股票池失败: %w", err)
	}
	return filtered, nil
}

// SaveRun 单事务批量写入回测结果
func (s *GormStore) SaveRun(ctx context.Context, run *RunRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(run.Results) > 0 {
			if err := tx.CreateInBatches(run.Results, 200).Error; err != nil {
				return fmt.Errorf("写入每日结果失败: %w", err)
			}
		}
		if len(run.Positions) > 0 {
			if err := tx.CreateInBatches(run.Positions, 200).Error; err != nil {
				return fmt.Errorf("写入持仓快照失败: %w", err)
			}
		}
		return nil
	})
}

// Regions 返回股票信息表中出现过的全部板块（去重）
func (s *GormStore) Regions(ctx context.Context) ([]string, error) {
	var regions []string
	err := s.db.WithContext(ctx).Model(&StockInfo{}).
		Distinct("region").
		Where("region <> ''").
		Order("region ASC").
		Pluck("region", &regions).Error
	if err != nil {
		return nil, fmt.Errorf("查询板块列表失败: %w", err)
	}
	return regions, nil
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
