// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bosmith517/scopekit/pkg/utils"
)

// Config 应用配置结构体
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Estimation   EstimationConfig   `mapstructure:"estimation"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Capture      CaptureConfig      `mapstructure:"capture"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
	Log          LogConfig          `mapstructure:"log"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// APIConfig 本地状态/控制 API
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// SyncConfig 同步引擎：重试上限、退避与自动 drain
type SyncConfig struct {
	MaxAttempts   int     `mapstructure:"max_attempts"`   // 队列项重试上限，<=0 默认 5
	BackoffBase   string  `mapstructure:"backoff_base"`   // 如 "1s"
	BackoffMax    string  `mapstructure:"backoff_max"`    // 如 "16s"
	BackoffJitter float64 `mapstructure:"backoff_jitter"` // 0~1，0 表示不加抖动
	AutoDrain     string  `mapstructure:"auto_drain"`     // 周期 drain 间隔，如 "5s"
	UploadTimeout string  `mapstructure:"upload_timeout"` // 单次上传/登记超时，如 "30s"
}

// EstimationConfig AI 估算触发与轮询
type EstimationConfig struct {
	PollInterval string `mapstructure:"poll_interval"` // 如 "1s"
	PollAttempts int    `mapstructure:"poll_attempts"` // <=0 默认 60
	MaxAttempts  int    `mapstructure:"max_attempts"`  // AIJob 重试上限，<=0 默认 3
}

// ConnectivityConfig 设备级连通性探测
type ConnectivityConfig struct {
	ProbeAddr     string `mapstructure:"probe_addr"`     // host:port，空则从 remote.base_url 推导
	ProbeInterval string `mapstructure:"probe_interval"` // 如 "3s"
	ProbeTimeout  string `mapstructure:"probe_timeout"`  // 如 "2s"
}

// StorageConfig 存储配置
type StorageConfig struct {
	Queue QueueStoreConfig `mapstructure:"queue"`
	Blob  BlobStoreConfig  `mapstructure:"blob"`
	Jobs  JobStoreConfig   `mapstructure:"jobs"`
	Cache CacheConfig      `mapstructure:"cache"`
}

// QueueStoreConfig 队列元数据存储
type QueueStoreConfig struct {
	Type string `mapstructure:"type"` // sqlite | postgres | memory
	Path string `mapstructure:"path"` // sqlite 文件
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
}

// BlobStoreConfig 二进制载荷存储
type BlobStoreConfig struct {
	Type string `mapstructure:"type"` // sqlite | file | memory
	Path string `mapstructure:"path"` // sqlite 文件或目录
}

// JobStoreConfig 离线 AIJob 存储
type JobStoreConfig struct {
	Type string `mapstructure:"type"` // sqlite | memory
	Path string `mapstructure:"path"`
}

// CacheConfig 估算结果缓存
type CacheConfig struct {
	Type     string `mapstructure:"type"` // sqlite | redis | memory
	Path     string `mapstructure:"path"`
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // 空表示不过期
}

// RemoteConfig 远端服务
type RemoteConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	Bucket       string  `mapstructure:"bucket"`
	TenantID     string  `mapstructure:"tenant_id"`
	APIKey       string  `mapstructure:"api_key"`        // 可为 ${ENV}
	APIKeySecret string  `mapstructure:"api_key_secret"` // 非空时从 secrets 读取
	Timeout      string  `mapstructure:"timeout"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	Burst        int     `mapstructure:"burst"`
}

// CaptureConfig 采集投递目录
type CaptureConfig struct {
	Enable   bool   `mapstructure:"enable"`
	InboxDir string `mapstructure:"inbox_dir"`
	Debounce string `mapstructure:"debounce"`
}

// SecretsConfig Secret Store
type SecretsConfig struct {
	Provider   string `mapstructure:"provider"` // env | memory | vault
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// Default 返回全部默认值的配置（本地 sqlite，无远端）
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize 为零值字段填充默认值
func (c *Config) Normalize() {
	def := func(s *string, v string) { *s = utils.CoalesceString(*s, v) }
	c.API.Port = utils.Positive(c.API.Port, 8787)
	def(&c.API.Host, "127.0.0.1")

	c.Sync.MaxAttempts = utils.Positive(c.Sync.MaxAttempts, 5)
	def(&c.Sync.BackoffBase, "1s")
	def(&c.Sync.BackoffMax, "16s")
	def(&c.Sync.AutoDrain, "5s")
	def(&c.Sync.UploadTimeout, "30s")

	def(&c.Estimation.PollInterval, "1s")
	c.Estimation.PollAttempts = utils.Positive(c.Estimation.PollAttempts, 60)
	c.Estimation.MaxAttempts = utils.Positive(c.Estimation.MaxAttempts, 3)

	def(&c.Connectivity.ProbeInterval, "3s")
	def(&c.Connectivity.ProbeTimeout, "2s")

	def(&c.Storage.Queue.Type, "sqlite")
	def(&c.Storage.Queue.Path, "data/scopekit.db")
	def(&c.Storage.Blob.Type, "sqlite")
	def(&c.Storage.Blob.Path, c.Storage.Queue.Path)
	def(&c.Storage.Jobs.Type, "sqlite")
	def(&c.Storage.Jobs.Path, c.Storage.Queue.Path)
	def(&c.Storage.Cache.Type, "sqlite")
	def(&c.Storage.Cache.Path, c.Storage.Queue.Path)

	def(&c.Remote.Bucket, "media")
	def(&c.Remote.Timeout, "30s")
	c.Remote.RateLimitRPS = utils.Positive(c.Remote.RateLimitRPS, 10)
	c.Remote.Burst = utils.Positive(c.Remote.Burst, 5)

	def(&c.Capture.InboxDir, "data/inbox")
	def(&c.Capture.Debounce, "500ms")

	def(&c.Secrets.Provider, "env")
	def(&c.Log.Level, "info")
	def(&c.Monitoring.Tracing.ServiceName, "scopekit-syncd")
}

// Duration 解析时长字符串，空或非法时返回 fallback
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Validate 检查启动前必须满足的约束
func (c *Config) Validate() error {
	if c.Storage.Queue.Type == "postgres" && c.Storage.Queue.DSN == "" {
		return fmt.Errorf("storage.queue.dsn 不能为空（type=postgres）")
	}
	if c.Sync.BackoffJitter < 0 || c.Sync.BackoffJitter >= 1 {
		return fmt.Errorf("sync.backoff_jitter 必须在 [0,1) 内: %v", c.Sync.BackoffJitter)
	}
	for name, v := range map[string]string{
		"sync.backoff_base":        c.Sync.BackoffBase,
		"sync.backoff_max":         c.Sync.BackoffMax,
		"sync.auto_drain":          c.Sync.AutoDrain,
		"sync.upload_timeout":      c.Sync.UploadTimeout,
		"estimation.poll_interval": c.Estimation.PollInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s 无效: %w", name, err)
		}
	}
	return nil
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// replaceEnvVars 替换配置中 ${ENV} 形式的值
func replaceEnvVars(config *Config) {
	for _, p := range []*string{
		&config.Remote.APIKey,
		&config.Remote.BaseURL,
		&config.Storage.Queue.DSN,
		&config.Storage.Cache.Password,
		&config.Secrets.Token,
	} {
		*p = expandEnv(*p)
	}
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}
