// Package api contains all endpoints available
package api

import (
	"fmt"
	"strings"
	"time"

	"nanohost/storage-api/db"
	"nanohost/storage-api/internal/service"
	"nanohost/storage-api/ledger"
	"nanohost/storage-api/middleware"
	"nanohost/storage-api/pricing"
	"nanohost/storage-api/store"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var cacheStore = persist.NewMemoryStore(time.Minute)

// HostingConfig carries the request-level knobs handlers need. Built
// once from the config file, never read from ambient state inside
// handlers
type HostingConfig struct {
	Domain        string
	RoutingPrefix string
	UploadTTL     time.Duration
	DownloadTTL   time.Duration
	HashTimeout   time.Duration

	// Operator cap on upload bodies, independent of the per-invoice
	// size match
	MaxUploadSize int64
}

// PublicURL builds the public hosting URL for an object identifier
func (h HostingConfig) PublicURL(objectID string) string {
	return "https://" + h.Domain + h.RoutingPrefix + "/cdn/" + objectID
}

type API struct {
	DB         *gorm.DB
	Router     *gin.Engine
	Store      store.Blob
	Wallet     ledger.Wallet
	Key        *ledger.ServerKey
	Pricing    *pricing.Engine
	Advertiser *service.Advertiser
	Hosting    HostingConfig
}

func NewRouter() (*API, error) {
	makeLogger()

	database, err := db.New(db.Config{
		Driver: viper.GetString("db.driver"),
		DSN:    viper.GetString("db.dsn"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	key, err := ledger.NewServerKey(viper.GetString("wallet.private_key"))
	if err != nil {
		return nil, err
	}

	blob, err := store.NewS3(store.Config{
		Bucket:          viper.GetString("storage.bucket"),
		Region:          viper.GetString("storage.region"),
		Endpoint:        viper.GetString("storage.endpoint"),
		AccessKeyID:     viper.GetString("storage.access_key_id"),
		SecretAccessKey: viper.GetString("storage.secret_access_key"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client, %w", err)
	}

	wallet := ledger.NewClient(viper.GetString("wallet.url"))

	overlay := service.NewOverlayQueue(
		viper.GetStringSlice("overlay.hosts"),
		viper.GetInt("overlay.workers"),
	)
	overlay.StartWorkerPool()

	engine := pricing.NewEngine(pricing.Config{
		PerGBMonthUSD:       viper.GetFloat64("pricing.per_gb_month_usd"),
		FallbackRate:        viper.GetFloat64("pricing.fallback_rate"),
		MinRetentionMinutes: viper.GetInt64("hosting.min_retention_minutes"),
	}, pricing.NewHTTPOracle(viper.GetString("pricing.rate_url")))

	a := &API{
		DB:         database,
		Store:      blob,
		Wallet:     wallet,
		Key:        key,
		Pricing:    engine,
		Advertiser: service.NewAdvertiser(database, wallet, key, overlay),
		Hosting: HostingConfig{
			Domain:        viper.GetString("host.domain"),
			RoutingPrefix: strings.TrimRight(viper.GetString("host.routing_prefix"), "/"),
			UploadTTL:     time.Duration(viper.GetInt("storage.upload_ttl_minutes")) * time.Minute,
			DownloadTTL:   time.Duration(viper.GetInt("storage.download_ttl_minutes")) * time.Minute,
			HashTimeout:   time.Duration(viper.GetInt("hosting.hash_timeout_seconds")) * time.Second,
			MaxUploadSize: viper.GetInt64("hosting.max_upload_size"),
		},
	}

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("identityKey"); v != "" {
					fields = append(fields, zap.String("identity_key", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.MaxMultipartMemory = 5 << 20

	identity := middleware.NewIdentityMiddleware(viper.GetString("auth.jwt_secret"))

	a.registerRoutes(identity)

	service.ExpirySweeper(10*time.Minute, database, blob)

	return a, nil
}

func (a *API) registerRoutes(identity gin.HandlerFunc) {
	router := a.Router

	// HEAD /heartbeat		-> Used to check if the server is alive
	router.HEAD("/heartbeat", a.Heartbeat)

	// POST /quote			-> Prices a (size, retention) pair, no side effects
	router.POST("/quote", a.Quote)

	// POST /invoice		-> Creates an order and returns payment outputs
	router.POST("/invoice", identity, a.Invoice)

	// POST /pay			-> Verifies and broadcasts the payment for an order
	router.POST("/pay", identity, a.Pay)

	// POST /upload			-> Receives the paid file and publishes its advertisement
	router.POST("/upload", identity, a.Upload)

	// POST /renew			-> Extends an advertisement's expiry
	router.POST("/renew", identity, a.Renew)

	// GET /list			-> Lists the caller's advertised uploads
	router.GET("/list", identity, a.List)

	// GET /find			-> Resolves a locator to file metadata
	router.GET("/find", cacheFor(15), a.Find)

	// GET /cdn/:objectID	-> Serves a hosted file
	router.GET("/cdn/:objectID", a.FileServe)
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(cacheStore, time.Second*time.Duration(sec))
}
