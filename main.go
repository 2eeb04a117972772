package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"stockbt/analysis"
	"stockbt/api"
	"stockbt/backtest"
	"stockbt/cache"
	"stockbt/config"
	"stockbt/data"
	"stockbt/logger"
)

func main() {
	configFlag := flag.String("config", "", "配置文件路径，留空则搜索 ./config.yaml")
	modeFlag := flag.String("mode", "run", "运行模式: run(单次回测)/sweep(参数扫描)/serve(API服务)")
	csvFlag := flag.String("csv", "", "离线模式：从CSV读取日K数据，不连数据库")
	indexCSVFlag := flag.String("index-csv", "", "离线模式：指数日K的CSV文件")
	outputFlag := flag.String("output", "output.csv", "每日结果导出文件")
	positionsFlag := flag.String("positions", "position_log.csv", "终局持仓导出文件")
	saveFlag := flag.Bool("save", false, "回测结果写入数据库")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	config.GlobalConfig = cfg
	logger.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	log := logger.GetLogger()

	btCfg := cfg.ToBacktestConfig()
	ctx := context.Background()

	switch *modeFlag {
	case "serve":
		store := mustOpenStore(cfg)
		server := api.NewServer(cfg, store)
		if err := server.Start(); err != nil {
			log.Fatalf("API服务器退出: %v", err)
		}

	case "sweep":
		in := loadInputs(ctx, cfg, btCfg, *csvFlag, *indexCSVFlag)
		params := backtest.SweepParams{
			ProfitStopRatios: cfg.Sweep.ProfitStopRatios,
			LossStopRatios:   cfg.Sweep.LossStopRatios,
			MALines:          cfg.Sweep.MALines,
			Workers:          cfg.Sweep.Workers,
		}
		results, err := backtest.RunSweep(btCfg, in, params, log)
		if err != nil {
			log.Fatalf("参数扫描失败: %v", err)
		}
		if err := analysis.ExportSweepCSV(cfg.Sweep.ResultFile, results); err != nil {
			log.Fatalf("导出扫描结果失败: %v", err)
		}
		log.Infof("扫描结果已导出: %s", cfg.Sweep.ResultFile)

	case "run":
		in := loadInputs(ctx, cfg, btCfg, *csvFlag, *indexCSVFlag)

		opts := []backtest.Option{}
		if cfg.Backtest.LogFile != "" {
			runLog, closeLog, err := logger.NewRunLogger(cfg.Backtest.LogFile)
			if err != nil {
				log.Fatalf("创建回测日志文件失败: %v", err)
			}
			defer closeLog()
			opts = append(opts, backtest.WithLogger(runLog))
		}

		eng, err := backtest.NewEngine(btCfg, in.Series, in.Index, in.Universe, opts...)
		if err != nil {
			log.Fatalf("创建回测引擎失败: %v", err)
		}
		sink, err := eng.Run()
		if err != nil {
			log.Fatalf("回测失败: %v", err)
		}

		m := analysis.Calculate(sink.Daily(), btCfg.InitialCapital, 0.03)
		analysis.PrintReport(m)

		if err := analysis.ExportDailyCSV(*outputFlag, sink.Daily()); err != nil {
			log.Fatalf("导出每日结果失败: %v", err)
		}
		if err := analysis.ExportPositionsCSV(*positionsFlag, sink); err != nil {
			log.Fatalf("导出持仓失败: %v", err)
		}
		log.Infof("结果已导出: %s, %s", *outputFlag, *positionsFlag)

		if *saveFlag {
			store := mustOpenStore(cfg)
			runID := time.Now().Format("20060102150405")
			if err := store.SaveRun(ctx, sink.ToRun(runID)); err != nil {
				log.Fatalf("保存回测结果失败: %v", err)
			}
			log.Infof("回测结果已落库, run_id=%s", runID)
		}

	default:
		fmt.Fprintf(os.Stderr, "未知模式: %s\n", *modeFlag)
		os.Exit(1)
	}
}

// mustOpenStore 打开数据库存储，按配置套Redis缓存
func mustOpenStore(cfg *config.Config) data.Store {
	log := logger.GetLogger()
	gormStore, err := data.NewGormStore(cfg.Database.Type, cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.LogLevel)
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	if !cfg.Redis.Enabled {
		return gormStore
	}
	redisCache, err := cache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warnf("Redis不可用，跳过查询缓存: %v", err)
		return gormStore
	}
	return cache.NewCachedStore(gormStore, redisCache, time.Duration(cfg.Redis.Expiration)*time.Second)
}

// loadInputs 加载回测输入。给了CSV走离线路径，否则查数据库。
func loadInputs(ctx context.Context, cfg *config.Config, btCfg backtest.Config, csvFile, indexCSV string) *backtest.Inputs {
	log := logger.GetLogger()
	if csvFile != "" {
		bars, err := data.LoadBarsCSV(csvFile)
		if err != nil {
			log.Fatalf("读取CSV失败: %v", err)
		}
		// CSV可能不带均线列，统一补算
		analysis.FillMA(bars)
		series := data.NewPriceSeries(bars)

		var index *data.IndexSeries
		if indexCSV != "" {
			indexBars, err := data.LoadIndexCSV(indexCSV)
			if err != nil {
				log.Fatalf("读取指数CSV失败: %v", err)
			}
			index = data.NewIndexSeries(indexBars)
		} else {
			log.Warnf("未提供指数CSV，基准收益率按0处理")
			index = data.NewIndexSeries(nil)
		}
		log.Infof("离线数据加载完成: %d 条日K, %d 只股票", len(bars), len(series.Symbols()))
		return &backtest.Inputs{Series: series, Index: index, Universe: series.Symbols()}
	}

	store := mustOpenStore(cfg)
	in, err := backtest.LoadInputs(ctx, store, btCfg, cfg.ToUniverseCriteria(), log)
	if err != nil {
		log.Fatalf("加载回测数据失败: %v", err)
	}
	return in
}
