package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr        string `yaml:"addr"`         // API 监听地址，默认 :8080
	MetricsAddr string `yaml:"metrics_addr"` // expvar/pprof 调试地址，空则不启动
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// StoreConfig 存储路径
type StoreConfig struct {
	TradeDB    string `yaml:"trade_db"`    // sqlite 交易记录库
	ArchiveDir string `yaml:"archive_dir"` // badger 订单归档目录
	StateDir   string `yaml:"state_dir"`   // JSON 状态快照目录
}

// ExecutionConfig 执行引擎参数
type ExecutionConfig struct {
	MaxOrderSize    float64 `yaml:"max_order_size"`
	MaxSlippage     float64 `yaml:"max_slippage"`
	MinSliceSize    float64 `yaml:"min_slice_size"`
	MaxSlices       int     `yaml:"max_slices"`
	BaseSlippage    float64 `yaml:"base_slippage"`
	ImpactFactor    float64 `yaml:"impact_factor"`
	FilledThreshold float64 `yaml:"filled_threshold"`
	DedupWindowMs   int     `yaml:"dedup_window_ms"`
}

// DedupWindow 去重窗口时长。
func (c ExecutionConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMs) * time.Millisecond
}

// SizingConfig 凯利仓位参数
type SizingConfig struct {
	MaxFraction  float64 `yaml:"max_fraction"`
	MinFraction  float64 `yaml:"min_fraction"`
	RiskPerTrade float64 `yaml:"risk_per_trade"`
	Simulations  int     `yaml:"simulations"`
	GridSteps    int     `yaml:"grid_steps"`
}

// RiskConfig 风控限额
type RiskConfig struct {
	MaxConcentration     float64 `yaml:"max_concentration"`
	MaxLeverage          float64 `yaml:"max_leverage"`
	DailyLossRatio       float64 `yaml:"daily_loss_ratio"`
	WeeklyLossRatio      float64 `yaml:"weekly_loss_ratio"`
	MonthlyLossRatio     float64 `yaml:"monthly_loss_ratio"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxConsecutiveErrors int64   `yaml:"max_consecutive_errors"`
	DailyLossLimitCents  int64   `yaml:"daily_loss_limit_cents"`
}

// PortfolioConfig 组合风险引擎参数
type PortfolioConfig struct {
	HorizonDays   int     `yaml:"horizon_days"`
	MCSimulations int     `yaml:"mc_simulations"`
	FallbackVol   float64 `yaml:"fallback_vol"`
	MinSamples    int     `yaml:"min_samples"`
}

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Execution ExecutionConfig `yaml:"execution"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Risk      RiskConfig      `yaml:"risk"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
}

// Default 返回默认配置。引擎各自的 withDefaults 会填充零值参数，
// 这里只给出进程级别的缺省。
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: "127.0.0.1:6061",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Store: StoreConfig{
			TradeDB:    "data/trades.db",
			ArchiveDir: "data/orders",
			StateDir:   "data/state",
		},
	}
}

// Load 加载配置：默认值 <- YAML 文件 <- 环境变量，后者覆盖前者。
// filePath 为空或文件不存在时跳过文件层。
func Load(filePath string) (Config, error) {
	cfg := Default()

	if filePath != "" {
		raw, err := os.ReadFile(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("读取配置文件失败 %s: %w", filePath, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("解析配置文件失败 %s: %w", filePath, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("RISKCORE_ADDR", cfg.Server.Addr)
	cfg.Server.MetricsAddr = getEnv("RISKCORE_METRICS_ADDR", cfg.Server.MetricsAddr)
	cfg.Log.Level = getEnv("RISKCORE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.OutputFile = getEnv("RISKCORE_LOG_FILE", cfg.Log.OutputFile)
	cfg.Store.TradeDB = getEnv("RISKCORE_TRADE_DB", cfg.Store.TradeDB)
	cfg.Store.ArchiveDir = getEnv("RISKCORE_ARCHIVE_DIR", cfg.Store.ArchiveDir)
	cfg.Store.StateDir = getEnv("RISKCORE_STATE_DIR", cfg.Store.StateDir)
	cfg.Execution.MaxOrderSize = parseFloatEnv("RISKCORE_MAX_ORDER_SIZE", cfg.Execution.MaxOrderSize)
	cfg.Execution.MaxSlippage = parseFloatEnv("RISKCORE_MAX_SLIPPAGE", cfg.Execution.MaxSlippage)
	cfg.Risk.DailyLossRatio = parseFloatEnv("RISKCORE_DAILY_LOSS_RATIO", cfg.Risk.DailyLossRatio)
	cfg.Risk.MaxTradesPerDay = parseIntEnv("RISKCORE_MAX_TRADES_PER_DAY", cfg.Risk.MaxTradesPerDay)
	cfg.Risk.MaxLeverage = parseFloatEnv("RISKCORE_MAX_LEVERAGE", cfg.Risk.MaxLeverage)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
