package config

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                 string               `mapstructure:"env"`
	LogLevel            string               `mapstructure:"log_level"`
	LogType             string               `mapstructure:"log_type"`
	ServiceName         string               `mapstructure:"service_name"`
	Port                string               `mapstructure:"port"`
	Version             string               `mapstructure:"version"`
	Mode                string               `mapstructure:"mode"`
	Board               string               `mapstructure:"board"`
	TrustedProxies      []string             `mapstructure:"trusted_proxies"`
	ScanSettings        *ScanConfig          `mapstructure:"scan"`
	RateLimitSettings   *RateLimitConfig     `mapstructure:"rate_limit"`
	WorkerSettings      *WorkerConfig        `mapstructure:"worker"`
	CacheSettings       *CacheConfig         `mapstructure:"cache"`
	ReputationSettings  *ReputationConfig    `mapstructure:"reputation"`
	ScoringSettings     *ScoringConfig       `mapstructure:"scoring"`
	HistorySettings     *HistoryConfig       `mapstructure:"history"`
	LeaderboardSettings []*LeaderboardConfig `mapstructure:"leaderboards"`
	DbSettings          *DatabaseConfig      `mapstructure:"database"`
	KafkaSettings       *KafkaConfig         `mapstructure:"kafka"`
	S3Settings          *S3Config            `mapstructure:"s3"`
}

type ScanConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	AgentName      string        `mapstructure:"agent_name"`
	FetchMechanism int           `mapstructure:"fetch_mechanism"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	RobotsTimeout  time.Duration `mapstructure:"robots_timeout"`
	RobotsTtl      time.Duration `mapstructure:"robots_ttl"`
	MaxBodySize    int           `mapstructure:"max_body_size"`
	TtlForScan     time.Duration `mapstructure:"ttl_for_scan"`
}

type RateLimitConfig struct {
	Cap    int           `mapstructure:"cap"`
	Window time.Duration `mapstructure:"window"`
}

type WorkerConfig struct {
	MaxWorkers    int           `mapstructure:"max_workers"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type CacheConfig struct {
	Backend         string        `mapstructure:"backend"` // memcached | local
	Servers         string        `mapstructure:"servers"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ReputationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	MemoTtl time.Duration `mapstructure:"memo_ttl"`
}

type ScoringConfig struct {
	Weights *WeightsConfig `mapstructure:"weights"`
}

type WeightsConfig struct {
	Speed           float64 `mapstructure:"speed"`
	Accessibility   float64 `mapstructure:"accessibility"`
	Infrastructure  float64 `mapstructure:"infrastructure"`
	ModernTech      float64 `mapstructure:"modern_tech"`
	SEOSocial       float64 `mapstructure:"seo_social"`
	PageWeight      float64 `mapstructure:"page_weight"`
	PrivacySecurity float64 `mapstructure:"privacy_security"`
	GreenHosting    float64 `mapstructure:"green_hosting"`
	CodeQuality     float64 `mapstructure:"code_quality"`
	Mobile          float64 `mapstructure:"mobile"`
}

type HistoryConfig struct {
	MaxEntries    int `mapstructure:"max_entries"`
	AverageWindow int `mapstructure:"average_window"`
}

type LeaderboardConfig struct {
	Name            string        `mapstructure:"name"`
	Source          string        `mapstructure:"source"` // fixed | tranco_top | tranco_random
	SourceURL       string        `mapstructure:"source_url"`
	Size            int           `mapstructure:"size"`
	Sites           []string      `mapstructure:"sites"`
	FallbackSites   []string      `mapstructure:"fallback_sites"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	MinSuccess      int           `mapstructure:"min_success"`
	TopK            int           `mapstructure:"top_k"`
	TtlForScan      time.Duration `mapstructure:"ttl_for_scan"`
	TtlForSnapshot  time.Duration `mapstructure:"ttl_for_snapshot"`
	ScheduleHourUTC int           `mapstructure:"schedule_hour_utc"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | sqlite | "" (disabled)
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
	Consumer *ConsumerConfig `mapstructure:"consumer"`
}

type ProducerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type ConsumerConfig struct {
	ReadTopicName    string        `mapstructure:"read_topic_name"`
	Brokers          string        `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	ReadBatchTimeout time.Duration `mapstructure:"read_batch_timeout"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// Leaderboard returns the board definition with the given name or nil.
func (c *Config) Leaderboard(name string) *LeaderboardConfig {
	for _, lb := range c.LeaderboardSettings {
		if lb.Name == name {
			return lb
		}
	}
	return nil
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &cfg
}
