package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/tradebot/riskcore/internal/common"
	"github.com/tradebot/riskcore/internal/execution"
	"github.com/tradebot/riskcore/internal/metrics"
	"github.com/tradebot/riskcore/internal/portfolio"
	"github.com/tradebot/riskcore/internal/riskgate"
	"github.com/tradebot/riskcore/internal/server"
	"github.com/tradebot/riskcore/internal/sizing"
	"github.com/tradebot/riskcore/internal/store"
	"github.com/tradebot/riskcore/pkg/config"
	"github.com/tradebot/riskcore/pkg/logger"
	"github.com/tradebot/riskcore/pkg/persistence"
	"github.com/tradebot/riskcore/pkg/shutdown"
	"github.com/tradebot/riskcore/pkg/sigchan"
	"github.com/tradebot/riskcore/pkg/syncgroup"
)

func main() {
	// 加载 .env（尽力而为），缺失时直接用进程环境变量
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		configPath = flag.String("config", getenv("RISKCORE_CONFIG", "config.yaml"), "配置文件路径（YAML）")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	log := logrus.WithField("component", "riskd")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 存储
	trades, err := store.OpenTradeStore(cfg.Store.TradeDB)
	if err != nil {
		log.Fatalf("打开交易库失败: %v", err)
	}
	archive, err := store.OpenOrderArchive(cfg.Store.ArchiveDir)
	if err != nil {
		log.Fatalf("打开订单归档失败: %v", err)
	}

	// 引擎。熔断器先建：执行结果回调要回灌它的连续错误计数。
	breaker := riskgate.NewCircuitBreaker(riskgate.BreakerConfig{
		MaxConsecutiveErrors: cfg.Risk.MaxConsecutiveErrors,
		DailyLossLimitCents:  cfg.Risk.DailyLossLimitCents,
	})

	fillSignal := sigchan.New(16)
	exec := execution.NewEngine(execution.Config{
		Limits: execution.Limits{
			MaxOrderSize: cfg.Execution.MaxOrderSize,
			MaxSlippage:  cfg.Execution.MaxSlippage,
			MinSliceSize: cfg.Execution.MinSliceSize,
			MaxSlices:    cfg.Execution.MaxSlices,
		},
		Slippage: execution.SlippageModel{
			Base:   cfg.Execution.BaseSlippage,
			Impact: cfg.Execution.ImpactFactor,
		},
		FilledThreshold: cfg.Execution.FilledThreshold,
		DedupWindow:     cfg.Execution.DedupWindow(),
	},
		execution.WithArchiver(archive),
		execution.WithNotifier(fillSignal),
		execution.WithResultHook(func(filled bool) {
			if filled {
				breaker.OnSuccess()
			} else {
				breaker.OnError()
			}
		}),
		execution.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))),
	)

	portfolioEngine := portfolio.NewEngine(portfolio.Config{
		HorizonDays:   cfg.Portfolio.HorizonDays,
		MCSimulations: cfg.Portfolio.MCSimulations,
		FallbackVol:   cfg.Portfolio.FallbackVol,
		MinSamples:    cfg.Portfolio.MinSamples,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	sizingCalc := sizing.NewCalculator(sizing.Config{
		MaxFraction:  cfg.Sizing.MaxFraction,
		MinFraction:  cfg.Sizing.MinFraction,
		RiskPerTrade: cfg.Sizing.RiskPerTrade,
		Simulations:  cfg.Sizing.Simulations,
		GridSteps:    cfg.Sizing.GridSteps,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	gate := riskgate.NewGate(riskgate.Config{
		MaxPositionConcentration: cfg.Risk.MaxConcentration,
		MaxLeverage:              cfg.Risk.MaxLeverage,
		DailyLossRatio:           cfg.Risk.DailyLossRatio,
		WeeklyLossRatio:          cfg.Risk.WeeklyLossRatio,
		MonthlyLossRatio:         cfg.Risk.MonthlyLossRatio,
		MaxTradesPerDay:          cfg.Risk.MaxTradesPerDay,
	}, breaker)

	// 执行统计快照：启动时报告上次的累计值，终态信号/定时器触发保存
	stateStore := persistence.NewJSONFileService(cfg.Store.StateDir).NewStore("state", "riskd", "execution_stats")
	var prev execution.ExecutionStats
	switch err := stateStore.Load(&prev); err {
	case nil:
		metrics.SnapshotLoads.Add(1)
		log.Infof("上次运行累计: 订单 %d 笔, 成交 %d 笔", prev.TotalOrders, prev.FilledOrders)
	case persistence.ErrNotExists:
	default:
		log.Warnf("加载执行统计快照失败: %v", err)
	}

	saveStats := func() {
		if err := stateStore.Save(exec.Stats()); err != nil {
			log.Warnf("保存执行统计快照失败: %v", err)
			return
		}
		metrics.SnapshotSaves.Add(1)
	}

	// 后台任务：终态信号触发保存（防抖合并成交风暴），定时器兜底
	sg := syncgroup.NewSyncGroup()
	sg.Add(func() {
		debounce := common.NewDebouncer(5 * time.Second)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-fillSignal.C():
				if ready, _ := debounce.ReadyNow(); ready {
					saveStats()
					debounce.MarkNow()
				}
			case <-ticker.C:
				saveStats()
			}
		}
	})
	sg.Run()

	// metrics/pprof 调试服务
	if cfg.Server.MetricsAddr != "" {
		if _, err := metrics.StartAsync(rootCtx, cfg.Server.MetricsAddr); err != nil {
			log.Warnf("metrics 服务启动失败: %v", err)
		} else {
			log.Infof("metrics 服务监听 %s", cfg.Server.MetricsAddr)
		}
	}

	// HTTP API。订单执行挂在 rootCtx 上，与单次请求解耦。
	api := server.New(rootCtx, server.Deps{
		Portfolio: portfolioEngine,
		Sizing:    sizingCalc,
		Execution: exec,
		Gate:      gate,
		Trades:    trades,
		Archive:   archive,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("riskd 监听 %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server error: %v", err)
		}
	}()

	// 优雅关闭：停 HTTP -> 取消活动订单 -> 保存快照 -> 关存储
	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) {
		_ = httpSrv.Shutdown(ctx)
	})
	mgr.OnShutdown(func(ctx context.Context) {
		rootCancel()
		exec.Wait()
		saveStats()
	})

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh
	log.Info("收到退出信号，开始关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)

	sg.Wait()
	if err := trades.Close(); err != nil {
		log.Warnf("关闭交易库失败: %v", err)
	}
	if err := archive.Close(); err != nil {
		log.Warnf("关闭订单归档失败: %v", err)
	}
	log.Info("riskd 已停止")
}
