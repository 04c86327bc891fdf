// Command clobd is an example host for the engine: it exposes a single
// HTTP endpoint that accepts packed calldata and runs it through
// dispatch.Dispatch against an in-memory slot.Storage. Real deployments
// would back Storage with whatever key/value store sits behind the
// host's actual execution environment; this binary exists to exercise
// the engine end to end, not to be a production gateway.
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goblinclob/engine/internal/clob/dispatch"
	"github.com/goblinclob/engine/internal/clob/engine"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/config"
	"github.com/goblinclob/engine/pkg/logger"
)

type dispatchRequest struct {
	Caller   string `json:"caller" binding:"required"`
	Calldata string `json:"calldata" binding:"required"`
}

type callResultJSON struct {
	Selector uint8  `json:"selector"`
	ExitCode uint8  `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

type dispatchResponse struct {
	TraceID string           `json:"trace_id"`
	Calls   []callResultJSON `json:"calls"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfgMgr := config.NewMarketConfigManager(os.Getenv("MARKET_CONFIG_PATH"), zapLogger)
	if err := cfgMgr.LoadConfig(); err != nil {
		zapLogger.Fatal("Failed to load market configuration", zap.Error(err))
	}
	marketCfg := cfgMgr.GetConfig()
	zapLogger.Info("market configuration loaded",
		zap.Uint16("fee_bps", marketCfg.FeeBps),
		zap.Uint8("max_calls_per_batch", marketCfg.MaxCallsPerBatch))

	baseToken := common.HexToAddress(envOrDefault("BASE_TOKEN", "0x0000000000000000000000000000000000000001"))
	quoteToken := common.HexToAddress(envOrDefault("QUOTE_TOKEN", "0x0000000000000000000000000000000000000002"))

	storage := slot.NewMemoryStorage()
	eng := engine.New(storage, baseToken, quoteToken)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/dispatch", func(c *gin.Context) {
		traceID := uuid.New().String()
		log := zapLogger.With(zap.String("trace_id", traceID))

		var req dispatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warn("malformed dispatch request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"trace_id": traceID, "error": err.Error()})
			return
		}

		calldata, err := hex.DecodeString(req.Calldata)
		if err != nil {
			log.Warn("calldata is not valid hex", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"trace_id": traceID, "error": "calldata must be hex-encoded"})
			return
		}
		caller := common.HexToAddress(req.Caller)

		result, err := dispatch.Dispatch(eng, caller, calldata)
		if err != nil {
			log.Info("batch aborted by protocol error", zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"trace_id": traceID, "error": err.Error()})
			return
		}

		resp := dispatchResponse{TraceID: traceID}
		for _, call := range result.Calls {
			resp.Calls = append(resp.Calls, callResultJSON{
				Selector: uint8(call.Selector),
				ExitCode: call.ExitCode,
				Output:   hex.EncodeToString(call.Output),
			})
		}
		log.Debug("batch executed", zap.Int("num_calls", len(resp.Calls)))
		c.JSON(http.StatusOK, resp)
	})

	addr := fmt.Sprintf(":%s", envOrDefault("PORT", "8080"))

	go func() {
		zapLogger.Info("starting clobd", zap.String("addr", addr))
		if err := router.Run(addr); err != nil {
			zapLogger.Fatal("clobd server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("clobd shutting down")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
