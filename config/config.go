package config

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"stockbt/backtest"
	"stockbt/data"
)

var GlobalConfig *Config

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置，Type为sqlite或mysql
type DatabaseConfig struct {
	Type         string `mapstructure:"type"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// RedisConfig Redis配置，Enabled为false时不启用查询缓存
type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	Expiration int    `mapstructure:"expiration"` // 缓存过期秒数
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// BacktestConfig 回测参数配置
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	StartDate      string  `mapstructure:"start_date"`
	EndDate        string  `mapstructure:"end_date"`
	IndexCode      string  `mapstructure:"index_code"`

	LotSize        int     `mapstructure:"lot_size"`
	MaxPositions   int     `mapstructure:"max_positions"`
	MinCashReserve float64 `mapstructure:"min_cash_reserve"`

	ProfitStopRatio float64 `mapstructure:"profit_stop_ratio"`
	LossStopRatio   float64 `mapstructure:"loss_stop_ratio"`
	MaxHoldDays     int     `mapstructure:"max_hold_days"`

	MALine   string  `mapstructure:"ma_line"`
	MinPrice float64 `mapstructure:"min_price"`
	MaxPrice float64 `mapstructure:"max_price"`

	MinMarketCap float64 `mapstructure:"min_market_cap"` // 亿元
	MaxMarketCap float64 `mapstructure:"max_market_cap"`
	Region       string  `mapstructure:"region"`

	ReEntryMode         string `mapstructure:"re_entry_mode"`
	ReEntryMALine       string `mapstructure:"re_entry_ma_line"`
	ReEntryCooldownDays int    `mapstructure:"re_entry_cooldown_days"`

	RandomSeed int64  `mapstructure:"random_seed"`
	LogFile    string `mapstructure:"log_file"`
}

// SweepConfig 参数扫描配置
type SweepConfig struct {
	ProfitStopRatios []float64 `mapstructure:"profit_stop_ratios"`
	LossStopRatios   []float64 `mapstructure:"loss_stop_ratios"`
	MALines          []string  `mapstructure:"ma_lines"`
	Workers          int       `mapstructure:"workers"`
	ResultFile       string    `mapstructure:"result_file"`
}

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// 设置环境变量前缀
	viper.SetEnvPrefix("STOCKBT")
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		log.Println("未找到配置文件，使用默认配置")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置
func setDefaults() {
	// 服务器默认配置
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")

	// 数据库默认配置
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "stockbt.db")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.log_level", "warn")

	// Redis默认配置
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.expiration", 3600)

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	// 回测默认配置
	viper.SetDefault("backtest.initial_capital", 100000.0)
	viper.SetDefault("backtest.index_code", "000300.SH")
	viper.SetDefault("backtest.lot_size", 100)
	viper.SetDefault("backtest.max_positions", 100)
	viper.SetDefault("backtest.min_cash_reserve", 5000.0)
	viper.SetDefault("backtest.profit_stop_ratio", 1.2)
	viper.SetDefault("backtest.loss_stop_ratio", 0.8)
	viper.SetDefault("backtest.max_hold_days", 0)
	viper.SetDefault("backtest.ma_line", "ma30")
	viper.SetDefault("backtest.re_entry_mode", "none")
	viper.SetDefault("backtest.re_entry_cooldown_days", 30)
	viper.SetDefault("backtest.random_seed", 666)
	viper.SetDefault("backtest.log_file", "")

	// 参数扫描默认配置
	viper.SetDefault("sweep.profit_stop_ratios", []float64{1.1, 1.15, 1.2, 1.25, 1.3})
	viper.SetDefault("sweep.loss_stop_ratios", []float64{0.7, 0.75, 0.8, 0.85, 0.9})
	viper.SetDefault("sweep.ma_lines", []string{"ma20", "ma30", "ma45", "ma60"})
	viper.SetDefault("sweep.workers", 0)
	viper.SetDefault("sweep.result_file", "sweep_result.csv")
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	// 验证端口号
	if port, err := strconv.Atoi(config.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("无效的端口号: %s", config.Server.Port)
	}

	switch config.Database.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", config.Database.Type)
	}

	bt := config.Backtest
	if bt.StartDate != "" {
		if _, err := time.Parse(data.DateLayout, bt.StartDate); err != nil {
			return fmt.Errorf("无效的回测开始日期: %s", bt.StartDate)
		}
	}
	if bt.EndDate != "" {
		if _, err := time.Parse(data.DateLayout, bt.EndDate); err != nil {
			return fmt.Errorf("无效的回测结束日期: %s", bt.EndDate)
		}
	}
	switch backtest.ReEntryMode(bt.ReEntryMode) {
	case backtest.ReEntryNone, backtest.ReEntryMA, backtest.ReEntryCooldown:
	default:
		return fmt.Errorf("无效的复活方式: %s", bt.ReEntryMode)
	}
	return nil
}

// ToBacktestConfig 将配置转换为回测引擎参数。
// 日期字符串已在validateConfig中校验，此处忽略解析错误。
func (c *Config) ToBacktestConfig() backtest.Config {
	bt := c.Backtest
	start, _ := time.Parse(data.DateLayout, bt.StartDate)
	end, _ := time.Parse(data.DateLayout, bt.EndDate)
	reMALine := bt.ReEntryMALine
	if reMALine == "" {
		reMALine = bt.MALine
	}
	return backtest.Config{
		InitialCapital:      bt.InitialCapital,
		Start:               start,
		End:                 end,
		IndexCode:           bt.IndexCode,
		LotSize:             bt.LotSize,
		MaxPositions:        bt.MaxPositions,
		MinCashReserve:      bt.MinCashReserve,
		ProfitStopRatio:     bt.ProfitStopRatio,
		LossStopRatio:       bt.LossStopRatio,
		MaxHoldDays:         bt.MaxHoldDays,
		MALine:              bt.MALine,
		MinPrice:            bt.MinPrice,
		MaxPrice:            bt.MaxPrice,
		ReEntryMode:         backtest.ReEntryMode(bt.ReEntryMode),
		ReEntryMALine:       reMALine,
		ReEntryCooldownDays: bt.ReEntryCooldownDays,
		Seed:                bt.RandomSeed,
	}
}

// ToUniverseCriteria 股票池筛选条件
func (c *Config) ToUniverseCriteria() data.UniverseCriteria {
	bt := c.Backtest
	return data.UniverseCriteria{
		MinPrice:     bt.MinPrice,
		MaxPrice:     bt.MaxPrice,
		MinMarketCap: bt.MinMarketCap,
		MaxMarketCap: bt.MaxMarketCap,
		Region:       bt.Region,
	}
}
