package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	JWT         JWTConfig
	RateLimit   RateLimitConfig
	Extractor   ExtractorConfig
	Transcriber TranscriberConfig
	Vision      VisionConfig
	Capture     CaptureConfig
	R2          R2Config
	OIDC        OIDCConfig
	Gateway     GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	GeneratePerHour int
	UploadPerHour   int
	CapturePerMin   int
}

// ExtractorConfig configures the scene-based frame extraction service.
type ExtractorConfig struct {
	ServiceURL     string
	Timeout        int // seconds
	SceneThreshold float64
	MaxFrames      int
	MinFrames      int
}

// TranscriberConfig configures the speech-to-text service.
type TranscriberConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

// VisionConfig configures the vision-language service used for step
// synthesis and frame-step matching.
type VisionConfig struct {
	ServiceURL       string
	APIKey           string
	Model            string
	Timeout          int // seconds
	MatchTimeout     int // seconds
	ContextCharLimit int // transcript truncation budget for synthesis context
}

// CaptureConfig bounds live recording sessions.
type CaptureConfig struct {
	MaxBytes int64
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type OIDCConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("VISION_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("extractor.service_url", "EXTRACTOR_SERVICE_URL")
	_ = viper.BindEnv("extractor.timeout", "EXTRACTOR_TIMEOUT")
	_ = viper.BindEnv("extractor.scene_threshold", "EXTRACTOR_SCENE_THRESHOLD")
	_ = viper.BindEnv("extractor.max_frames", "EXTRACTOR_MAX_FRAMES")
	_ = viper.BindEnv("extractor.min_frames", "EXTRACTOR_MIN_FRAMES")
	_ = viper.BindEnv("transcriber.service_url", "TRANSCRIBER_SERVICE_URL")
	_ = viper.BindEnv("transcriber.timeout", "TRANSCRIBER_TIMEOUT")
	_ = viper.BindEnv("vision.service_url", "VISION_SERVICE_URL")
	_ = viper.BindEnv("vision.api_key", "VISION_API_KEY")
	_ = viper.BindEnv("vision.model", "VISION_MODEL")
	_ = viper.BindEnv("vision.timeout", "VISION_TIMEOUT")
	_ = viper.BindEnv("vision.match_timeout", "VISION_MATCH_TIMEOUT")
	_ = viper.BindEnv("vision.context_char_limit", "VISION_CONTEXT_CHAR_LIMIT")
	_ = viper.BindEnv("capture.max_bytes", "CAPTURE_MAX_BYTES")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("oidc.domain", "OIDC_DOMAIN")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.generate_per_hour", 5)
	viper.SetDefault("ratelimit.upload_per_hour", 20)
	viper.SetDefault("ratelimit.capture_per_min", 120)

	// Extractor defaults
	viper.SetDefault("extractor.service_url", "http://localhost:8091")
	viper.SetDefault("extractor.timeout", 120)
	viper.SetDefault("extractor.scene_threshold", 0.3)
	viper.SetDefault("extractor.max_frames", 20)
	viper.SetDefault("extractor.min_frames", 4)

	// Transcriber defaults
	viper.SetDefault("transcriber.service_url", "http://localhost:8092")
	viper.SetDefault("transcriber.timeout", 180)

	// Vision service defaults
	viper.SetDefault("vision.service_url", "http://localhost:8093")
	viper.SetDefault("vision.model", "default")
	viper.SetDefault("vision.timeout", 300)
	viper.SetDefault("vision.match_timeout", 60)
	viper.SetDefault("vision.context_char_limit", 15000)

	// Capture defaults (200MB recording budget)
	viper.SetDefault("capture.max_bytes", 200*1024*1024)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			UploadPerHour:   viper.GetInt("ratelimit.upload_per_hour"),
			CapturePerMin:   viper.GetInt("ratelimit.capture_per_min"),
		},
		Extractor: ExtractorConfig{
			ServiceURL:     viper.GetString("extractor.service_url"),
			Timeout:        viper.GetInt("extractor.timeout"),
			SceneThreshold: viper.GetFloat64("extractor.scene_threshold"),
			MaxFrames:      viper.GetInt("extractor.max_frames"),
			MinFrames:      viper.GetInt("extractor.min_frames"),
		},
		Transcriber: TranscriberConfig{
			ServiceURL: viper.GetString("transcriber.service_url"),
			Timeout:    viper.GetInt("transcriber.timeout"),
		},
		Vision: VisionConfig{
			ServiceURL:       viper.GetString("vision.service_url"),
			APIKey:           viper.GetString("vision.api_key"),
			Model:            viper.GetString("vision.model"),
			Timeout:          viper.GetInt("vision.timeout"),
			MatchTimeout:     viper.GetInt("vision.match_timeout"),
			ContextCharLimit: viper.GetInt("vision.context_char_limit"),
		},
		Capture: CaptureConfig{
			MaxBytes: viper.GetInt64("capture.max_bytes"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		OIDC: OIDCConfig{
			Domain:   viper.GetString("oidc.domain"),
			ClientID: viper.GetString("oidc.client_id"),
			Issuer:   viper.GetString("oidc.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
