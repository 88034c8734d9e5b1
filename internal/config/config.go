package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"agentpm/pkg/logging"
)

// Load 加载配置
// 1. 加载 .env.{env} / .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖并构建最终配置
func Load() *Config {
	loadDotEnv()

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)

	yamlCfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	yamlCfg.Database.Password = firstEnv("DB_PASSWORD", "MONGO_ROOT_PASSWORD")
	yamlCfg.MinIO.AccessKey = os.Getenv("MINIO_ROOT_USER")
	yamlCfg.MinIO.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")

	return build(env, yamlCfg)
}

// build 由 YAML 结构和环境变量构建最终配置
func build(env Environment, y *YAMLConfig) *Config {
	databaseURL := getEnv("DATABASE_URL", "")
	driver := detectDatabaseDriver(y.Database.Driver, databaseURL)
	y.Database.Driver = driver
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(y.Database, y.Database.Password)
	}

	cfg := &Config{
		Env:            env,
		DatabaseDriver: driver,
		DatabaseURL:    databaseURL,
		DatabaseName:   y.Database.Name,
		RedisURL:       getEnv("REDIS_URL", buildRedisURL(y.Redis)),
		EtcdEndpoints:  y.Etcd.Endpoints,
		EtcdPrefix:     y.Etcd.Prefix,
		MinIO:          y.MinIO,
		State:          y.State,
		Orchestrator:   y.Orchestrator,
		Pipeline:       y.Pipeline,
		Quality:        y.Quality,
		LLM:            y.LLM,
		Log:            y.Log,
		Metrics:        y.Metrics,
		ConfigFile:     y.loadedFrom,
	}

	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		cfg.EtcdEndpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && cfg.LLM.Host == "" {
		cfg.LLM.Host = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PIPELINE_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxConcurrency = n
		}
	}

	cfg.validate()
	return cfg
}

// defaultYAMLConfig 代码硬编码默认值
func defaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Redis:    RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Etcd:     EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/agentpm"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "agentpm.db", Host: "localhost", Port: 5432, User: "agentpm", Name: "agentpm", SSLMode: "disable"},
		MinIO:    MinIOConfig{Bucket: "agentpm-documents"},
		State: StateConfig{
			Backend:            "redis",
			StateTTL:           24 * time.Hour,
			CheckpointTTL:      7 * 24 * time.Hour,
			CheckpointInterval: 5 * time.Minute,
			CheckpointDir:      "checkpoints",
		},
		Orchestrator: OrchestratorConfig{
			MinQuestions:     3,
			MinResultLength:  50,
			EnhancementLevel: "standard",
			QualityLevel:     "standard",
			RefineDocuments:  true,
		},
		Pipeline: PipelineConfig{MaxConcurrency: 3, Parallel: true},
		Quality:  QualityConfig{Threshold: 85, Excellence: 95},
		LLM:      LLMConfig{Provider: "ollama", Model: "llama3.1", Timeout: 3 * time.Minute},
		Log:      logging.Config{Level: "info", Format: "text", Output: "stderr"},
		Metrics:  MetricsConfig{Listen: ":9464"},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := defaultYAMLConfig()

	for _, base := range configPathsForEnv(env) {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "[config] WARNING: parse %s: %v\n", path, err)
			}
			break
		}
	}

	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPathsForEnv(env) {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "[config] WARNING: parse %s: %v\n", path, err)
			}
			cfg.loadedFrom = path
			break
		}
	}

	return cfg
}

// loadDotEnv 依次尝试 .env.{APP_ENV} 与 .env，已存在的环境变量不被覆盖
func loadDotEnv() {
	env := os.Getenv("APP_ENV")
	for _, dir := range envSearchDirs {
		if env != "" {
			_ = godotenv.Load(filepath.Join(dir, ".env."+env))
		}
		if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
			return
		}
	}
}

// validate 填充零值字段的默认值
func (c *Config) validate() {
	def := defaultYAMLConfig()

	switch c.State.Backend {
	case "redis", "etcd", "memory":
	default:
		c.State.Backend = def.State.Backend
	}
	if c.State.StateTTL <= 0 {
		c.State.StateTTL = def.State.StateTTL
	}
	if c.State.CheckpointTTL <= 0 {
		c.State.CheckpointTTL = def.State.CheckpointTTL
	}
	if c.State.CheckpointInterval <= 0 {
		c.State.CheckpointInterval = def.State.CheckpointInterval
	}
	if c.State.CheckpointDir == "" {
		c.State.CheckpointDir = def.State.CheckpointDir
	}
	if c.Orchestrator.MinQuestions <= 0 {
		c.Orchestrator.MinQuestions = def.Orchestrator.MinQuestions
	}
	if c.Orchestrator.MinResultLength <= 0 {
		c.Orchestrator.MinResultLength = def.Orchestrator.MinResultLength
	}
	if c.Orchestrator.QualityLevel == "" {
		c.Orchestrator.QualityLevel = def.Orchestrator.QualityLevel
	}
	if c.Pipeline.MaxConcurrency <= 0 {
		c.Pipeline.MaxConcurrency = def.Pipeline.MaxConcurrency
	}
	if c.Quality.Threshold <= 0 {
		c.Quality.Threshold = def.Quality.Threshold
	}
	if c.Quality.Excellence <= 0 {
		c.Quality.Excellence = def.Quality.Excellence
	}
	if c.LLM.Model == "" {
		c.LLM.Model = def.LLM.Model
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = def.LLM.Timeout
	}
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = def.MinIO.Bucket
	}
}
