package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	AnalyticsCacheTTLSeconds int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	LogLevel                 string
	Environment              string
	StoreTimezone            string
	SaleCommitRetries        int
	LowStockThreshold        int
	GCSBucket                string
	PDFRendererURL           string
	ShopName                 string
	ShopAddress              string
	ShopPhone                string
	ShopTaxID                string
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		AnalyticsCacheTTLSeconds: getPositiveInt("ANALYTICS_CACHE_TTL_SECONDS", 30),
		AuthSecret:               strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:    getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		Environment:              getEnv("APP_ENV", "development"),
		StoreTimezone:            getEnv("STORE_TIMEZONE", "Asia/Kolkata"),
		SaleCommitRetries:        getPositiveInt("SALE_COMMIT_RETRIES", 5),
		LowStockThreshold:        getPositiveInt("LOW_STOCK_THRESHOLD", 5),
		GCSBucket:                strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		PDFRendererURL:           strings.TrimSpace(os.Getenv("PDF_RENDERER_URL")),
		ShopName:                 getEnv("SHOP_NAME", "Green Nets & Tarpaulins"),
		ShopAddress:              os.Getenv("SHOP_ADDRESS"),
		ShopPhone:                os.Getenv("SHOP_PHONE"),
		ShopTaxID:                os.Getenv("SHOP_TAX_ID"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.StoreTimezone)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
