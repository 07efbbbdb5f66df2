package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".taskforge/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"taskforge/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// EngineEnv tunes the decomposition engine.
type EngineEnv struct {
	MaxDepth       int           `envconfig:"ENGINE_MAX_DEPTH" default:"5"`
	MinConfidence  float64       `envconfig:"ENGINE_MIN_CONFIDENCE" default:"0.8"`
	MaxRetries     int           `envconfig:"ENGINE_MAX_RETRIES" default:"2"`
	EpicTimeBudget float64       `envconfig:"ENGINE_EPIC_TIME_BUDGET_HOURS" default:"400"`
	CallTimeout    time.Duration `envconfig:"ENGINE_CALL_TIMEOUT" default:"120s"`
}

// BreakerEnv tunes the per-task circuit breaker guarding decomposition.
type BreakerEnv struct {
	MaxAttempts int           `envconfig:"BREAKER_MAX_ATTEMPTS" default:"3"`
	MaxFailures int           `envconfig:"BREAKER_MAX_FAILURES" default:"2"`
	Cooldown    time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
}

// RegistryEnv tunes agent health checking.
type RegistryEnv struct {
	HealthCheckInterval time.Duration `envconfig:"REGISTRY_HEALTH_CHECK_INTERVAL" default:"60s"`
	OfflineThreshold    time.Duration `envconfig:"REGISTRY_OFFLINE_THRESHOLD" default:"5m"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	EngineEnv
	BreakerEnv
	RegistryEnv
	VAPIDEnv
}

const namespace = "TASKFORGE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func EngineEnvFromEnv(env *Env) *EngineEnv {
	return &env.EngineEnv
}

func BreakerEnvFromEnv(env *Env) *BreakerEnv {
	return &env.BreakerEnv
}

func RegistryEnvFromEnv(env *Env) *RegistryEnv {
	return &env.RegistryEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
