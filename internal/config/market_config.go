package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MarketConfig holds the tunable parameters of a single market: how ticks
// and lots are scaled, the fee schedule, and batch and resting-order
// limits. Neither the engine nor dispatch reads these values; cmd/clobd
// loads the configuration and logs it.
type MarketConfig struct {
	TickSizeQuoteLots       uint64 `mapstructure:"tick_size_quote_lots"`
	BaseLotSize             uint64 `mapstructure:"base_lot_size"`
	QuoteLotSize            uint64 `mapstructure:"quote_lot_size"`
	FeeBps                  uint16 `mapstructure:"fee_bps"`
	MaxCallsPerBatch        uint8  `mapstructure:"max_calls_per_batch"`
	MaxRestingOrdersPerTick uint8  `mapstructure:"max_resting_orders_per_tick"`
}

// MarketConfigManager loads and hot-reloads MarketConfig from a viper
// source, matching the shape of the teacher's strong-consistency config
// manager: a guarded in-memory snapshot refreshed by explicit reload calls
// rather than a file watcher, since the engine itself never reloads
// configuration mid-transaction.
type MarketConfigManager struct {
	configPath string
	logger     *zap.Logger
	config     MarketConfig
	mutex      sync.RWMutex
	viper      *viper.Viper
}

// NewMarketConfigManager constructs a manager that will read from
// configPath, or fall back to search-path discovery and defaults if
// configPath is empty.
func NewMarketConfigManager(configPath string, logger *zap.Logger) *MarketConfigManager {
	return &MarketConfigManager{
		configPath: configPath,
		logger:     logger.Named("market-config"),
		viper:      viper.New(),
	}
}

// LoadConfig reads the configuration file (or defaults, if absent) into
// the manager's guarded snapshot.
func (mc *MarketConfigManager) LoadConfig() error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.logger.Info("loading market configuration", zap.String("path", mc.configPath))

	if mc.configPath != "" {
		if _, err := os.Stat(mc.configPath); os.IsNotExist(err) {
			mc.logger.Warn("configuration file not found, using defaults", zap.String("path", mc.configPath))
			mc.setDefaultConfiguration()
			return nil
		}
		mc.viper.SetConfigFile(mc.configPath)
	} else {
		mc.viper.SetConfigName("market")
		mc.viper.SetConfigType("yaml")
		mc.viper.AddConfigPath(".")
		mc.viper.AddConfigPath("./configs")
		mc.viper.AddConfigPath("/etc/goblinclob")
	}

	if err := mc.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			mc.logger.Warn("configuration file not found, using defaults")
			mc.setDefaultConfiguration()
			return nil
		}
		return fmt.Errorf("failed to read market configuration: %w", err)
	}

	var cfg MarketConfig
	if err := mc.viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal market configuration: %w", err)
	}
	mc.config = cfg

	mc.logger.Info("market configuration loaded",
		zap.String("file", mc.viper.ConfigFileUsed()),
		zap.Uint16("fee_bps", mc.config.FeeBps))

	return nil
}

// GetConfig returns a copy of the current configuration snapshot.
func (mc *MarketConfigManager) GetConfig() MarketConfig {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	return mc.config
}

// ReloadConfig re-reads the configuration source.
func (mc *MarketConfigManager) ReloadConfig() error {
	mc.logger.Info("reloading market configuration")
	return mc.LoadConfig()
}

func (mc *MarketConfigManager) setDefaultConfiguration() {
	mc.config = MarketConfig{
		TickSizeQuoteLots:       1,
		BaseLotSize:             1,
		QuoteLotSize:            1,
		FeeBps:                  10,
		MaxCallsPerBatch:        32,
		MaxRestingOrdersPerTick: 8,
	}
	mc.logger.Info("default market configuration loaded", zap.Uint16("fee_bps", mc.config.FeeBps))
}
