package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort   string `env:"HTTP_PORT" envDefault:"8080"`
	AppBaseURL string `env:"APP_BASE_URL,notEmpty"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	DBType     string `env:"DBType" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DBUser" envDefault:""`
	DBPassword string `env:"DBPassword" envDefault:""`
	DBAddr     string `env:"DBAddr" envDefault:""`
	DBName     string `env:"DBName" envDefault:"retratai"`
	DBPath     string `env:"DBPath" envDefault:"datas/retratai.db"`
	DBPort     string `env:"DBPort" envDefault:"5432"`

	StorageType          string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"datas/files"`
	StoragePublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// 阿里云 OSS 存储配置
	StorageOSSEndpoint        string `env:"STORAGE_OSS_ENDPOINT"`
	StorageOSSBucket          string `env:"STORAGE_OSS_BUCKET"`
	StorageOSSPrefix          string `env:"STORAGE_OSS_PREFIX"`
	StorageOSSAccessKeyID     string `env:"STORAGE_OSS_ACCESS_KEY_ID"`
	StorageOSSAccessKeySecret string `env:"STORAGE_OSS_ACCESS_KEY_SECRET"`

	// 腾讯云 COS 存储配置
	StorageCOSBucketURL string `env:"STORAGE_COS_BUCKET_URL"`
	StorageCOSPrefix    string `env:"STORAGE_COS_PREFIX"`
	StorageCOSSecretID  string `env:"STORAGE_COS_SECRET_ID"`
	StorageCOSSecretKey string `env:"STORAGE_COS_SECRET_KEY"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	// Supabase Storage 配置
	SupabaseURL           string `env:"SUPABASE_URL"`
	SupabaseServiceKey    string `env:"SUPABASE_SERVICE_KEY"`
	StorageSupabaseBucket string `env:"STORAGE_SUPABASE_BUCKET" envDefault:"zip"`

	// Replicate 训练与推理
	ReplicateAPIToken         string `env:"REPLICATE_API_TOKEN,notEmpty"`
	ReplicateBaseURL          string `env:"REPLICATE_BASE_URL" envDefault:"https://api.replicate.com/v1"`
	ReplicateOwner            string `env:"REPLICATE_OWNER,notEmpty"`
	ReplicateTrainerModel     string `env:"REPLICATE_TRAINER_MODEL" envDefault:"ostris/flux-dev-lora-trainer"`
	ReplicateTrainerVersion   string `env:"REPLICATE_TRAINER_VERSION" envDefault:"e440909d3512c31646ee2e0c7d6f6f4923224863a6a10c494606e79fb5844497"`
	ReplicateTrainingHardware string `env:"REPLICATE_TRAINING_HARDWARE" envDefault:"gpu-t4"`

	// Gemini 图片描述
	GeminiAPIKey       string `env:"GEMINI_API_KEY,notEmpty"`
	CaptionModel       string `env:"CAPTION_MODEL" envDefault:"gemini-2.0-flash"`
	CaptionMaxAttempts int    `env:"CAPTION_MAX_ATTEMPTS" envDefault:"4"`

	// 工作流
	WebhookSecret             string        `env:"WEBHOOK_SECRET,notEmpty"`
	MonetizationEnabled       bool          `env:"MONETIZATION_ENABLED" envDefault:"false"`
	SignupCredits             int           `env:"SIGNUP_CREDITS" envDefault:"0"`
	GenerationPrompts         []string      `env:"GENERATION_PROMPTS" envSeparator:";"`
	GenerationOutputsPerBatch int           `env:"GENERATION_OUTPUTS_PER_BATCH" envDefault:"4"`
	GenerationWorkers         int           `env:"GENERATION_WORKERS" envDefault:"2"`
	GenerationTimeout         time.Duration `env:"GENERATION_TIMEOUT" envDefault:"10m"`
	TrainingFetchWorkers      int           `env:"TRAINING_FETCH_WORKERS" envDefault:"4"`

	// 通知与队列
	ResendAPIKey     string `env:"RESEND_API_KEY" envDefault:""`
	EmailFrom        string `env:"EMAIL_FROM" envDefault:"RetratAI <no-reply@retratai.app>"`
	RedisAddr        string `env:"REDIS_ADDR" envDefault:""`
	RedisPassword    string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB          int    `env:"REDIS_DB" envDefault:"0"`
	QueueRedisKey    string `env:"QUEUE_REDIS_KEY" envDefault:"retratai:outbox"`
	QueueMaxAttempts int    `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"retratai"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
}

// ParseConfig 读取 .env（如存在）与环境变量并校验必填项。
func ParseConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	if err := Conf.Validate(); err != nil {
		return Config{}, err
	}
	return Conf, nil
}

// Validate 检查跨字段约束。
func (c Config) Validate() error {
	base := strings.TrimSpace(c.AppBaseURL)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return errors.New("config: APP_BASE_URL must be an absolute http(s) url")
	}
	if strings.EqualFold(strings.TrimSpace(c.StorageType), "supabase") {
		if strings.TrimSpace(c.SupabaseURL) == "" || strings.TrimSpace(c.SupabaseServiceKey) == "" {
			return errors.New("config: SUPABASE_URL and SUPABASE_SERVICE_KEY are required for supabase storage")
		}
	}
	if c.GenerationOutputsPerBatch < 1 || c.GenerationOutputsPerBatch > 4 {
		return errors.New("config: GENERATION_OUTPUTS_PER_BATCH must be between 1 and 4")
	}
	return nil
}

// Prompts 返回去除空白后的生成提示词列表。
func (c Config) Prompts() []string {
	out := make([]string, 0, len(c.GenerationPrompts))
	for _, p := range c.GenerationPrompts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
