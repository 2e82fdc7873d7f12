package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime knob of the service. It is parsed once in main
// and injected into the components that need it.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	MongoURI  string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB   string `env:"MONGO_DB" envDefault:"streamgate"`
	JWTSecret string `env:"JWT_SECRET"`

	ExtractorBin string `env:"EXTRACTOR_BIN" envDefault:"yt-dlp"`
	TempDir      string `env:"TEMP_DIR" envDefault:"/tmp/streamgate"`

	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"30m"`
	SingleUseTokens bool          `env:"SINGLE_USE_TOKENS" envDefault:"false"`

	ResolveTimeout  time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"60s"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"30m"`
	// Transfers running longer than this re-verify the token once mid-flight.
	RecheckAfter time.Duration `env:"TOKEN_RECHECK_AFTER" envDefault:"2m"`

	GlobalMaxDownloads int64 `env:"GLOBAL_MAX_DOWNLOADS" envDefault:"16"`
	BasicTierLimit     int   `env:"BASIC_TIER_LIMIT" envDefault:"1"`
	PremiumTierLimit   int   `env:"PREMIUM_TIER_LIMIT" envDefault:"5"`
}

// Load reads .env if present and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it, using environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
