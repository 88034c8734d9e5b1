// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在 .env 文件中（YAML 中不存储任何密码）。
//
// 环境：
//   - 开发: APP_ENV=dev → configs/dev.yaml + .env.dev
//   - 测试: APP_ENV=test → configs/test.yaml + .env.test
//   - 生产: APP_ENV=prod → /etc/agentpm/prod.yaml + prod.env
package config

import (
	"time"

	"agentpm/pkg/logging"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig 统一 YAML 配置文件结构
type YAMLConfig struct {
	Redis        RedisConfig        `yaml:"redis"`
	Etcd         EtcdConfig         `yaml:"etcd"`
	Database     DatabaseConfig     `yaml:"database"`
	MinIO        MinIOConfig        `yaml:"minio"`
	State        StateConfig        `yaml:"state"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Quality      QualityConfig      `yaml:"quality"`
	LLM          LLMConfig          `yaml:"llm"`
	Log          logging.Config     `yaml:"log"`
	Metrics      MetricsConfig      `yaml:"metrics"`

	loadedFrom string
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL（优先于 host/port/db）
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite", "postgres" 或 "mongodb"（默认 sqlite）
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从环境变量读取（DB_PASSWORD / MONGO_ROOT_PASSWORD）
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	URI      string `yaml:"uri"` // MongoDB 连接 URI
}

// MinIOConfig MinIO 对象存储配置，Endpoint 为空时不导出文档
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"` // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"` // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// StateConfig 会话状态存储配置
type StateConfig struct {
	Backend            string        `yaml:"backend"` // redis | etcd | memory
	StateTTL           time.Duration `yaml:"state_ttl"`
	CheckpointTTL      time.Duration `yaml:"checkpoint_ttl"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	CheckpointDir      string        `yaml:"checkpoint_dir"`
}

// OrchestratorConfig 会话编排配置
type OrchestratorConfig struct {
	MinQuestions     int    `yaml:"min_questions"`
	MinResultLength  int    `yaml:"min_result_length"`
	EnhancementLevel string `yaml:"enhancement_level"` // none | standard | advanced
	QualityLevel     string `yaml:"quality_level"`     // draft | standard | premium | excellence
	RefineDocuments  bool   `yaml:"refine_documents"`
}

// PipelineConfig 文档流水线配置
type PipelineConfig struct {
	MaxConcurrency int  `yaml:"max_concurrency"`
	Parallel       bool `yaml:"parallel"`
}

// QualityConfig 质量阈值配置
type QualityConfig struct {
	Threshold  float64 `yaml:"threshold"`
	Excellence float64 `yaml:"excellence"`
}

// LLMConfig 大模型调用配置
type LLMConfig struct {
	Provider string        `yaml:"provider"` // ollama
	Host     string        `yaml:"host"`     // 为空时使用 OLLAMA_HOST
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string
	DatabaseURL    string
	DatabaseName   string
	RedisURL       string
	EtcdEndpoints  []string
	EtcdPrefix     string
	MinIO          MinIOConfig
	State          StateConfig
	Orchestrator   OrchestratorConfig
	Pipeline       PipelineConfig
	Quality        QualityConfig
	LLM            LLMConfig
	Log            logging.Config
	Metrics        MetricsConfig

	// ConfigFile 实际加载的 YAML 文件路径，未找到时为空
	ConfigFile string
}
