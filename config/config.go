package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
	Web      WebConfig      `mapstructure:"web"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`             // 监听主机
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"` // 监听端口
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // 优雅停机超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"` // 日志级别
	File       string `mapstructure:"file"`        // 日志文件路径，为空时输出到stdout
	MaxSize    int    `mapstructure:"max_size"`    // 单个日志文件大小上限(MB)
	MaxBackups int    `mapstructure:"max_backups"` // 保留的历史日志文件数
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件保留天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩历史日志
}

// StorageConfig 上传文件存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型
	Path      string `mapstructure:"path"`       // 本地存储路径
	Bucket    string `mapstructure:"bucket"`     // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`   // MinIO端点
	AccessKey string `mapstructure:"access_key"` // MinIO访问密钥
	SecretKey string `mapstructure:"secret_key"` // MinIO私有密钥
	UseSSL    bool   `mapstructure:"use_ssl"`    // 是否使用SSL
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=memory faiss pgvector"` // 向量库类型
	Path     string `mapstructure:"path"`     // faiss索引文件路径或pgvector连接串
	Dim      int    `mapstructure:"dim" validate:"min=1"` // 向量维度
	Distance string `mapstructure:"distance"` // 距离度量方式：cosine, l2, dot
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`    // 提供商：openai, ollama
	Model       string  `mapstructure:"model"`       // 模型名称
	APIKey      string  `mapstructure:"api_key"`     // API密钥
	Endpoint    string  `mapstructure:"endpoint"`    // API端点
	MaxTokens   int     `mapstructure:"max_tokens"`  // 最大生成token数量
	Temperature float32 `mapstructure:"temperature"` // 采样温度
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider  string `mapstructure:"provider"`   // 提供商：openai, ollama
	Model     string `mapstructure:"model"`      // 模型名称
	APIKey    string `mapstructure:"api_key"`    // API密钥
	Endpoint  string `mapstructure:"endpoint"`   // API端点
	BatchSize int    `mapstructure:"batch_size"` // 批处理大小
}

// CacheConfig 问答缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`   // 是否启用缓存
	Type     string `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型
	Address  string `mapstructure:"address"`  // Redis地址
	Password string `mapstructure:"password"` // Redis密码
	DB       int    `mapstructure:"db"`       // Redis数据库编号
	TTL      int    `mapstructure:"ttl"`      // 缓存TTL（秒）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用异步任务处理
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay"`    // 重试延迟（秒）
}

// DatabaseConfig 元数据数据库配置
type DatabaseConfig struct {
	Type         string `mapstructure:"type" validate:"oneof=sqlite"` // 数据库类型
	DSN          string `mapstructure:"dsn"`            // 数据源名称
	MaxOpenConns int    `mapstructure:"max_open_conns"` // 最大打开连接数
	MaxIdleConns int    `mapstructure:"max_idle_conns"` // 最大空闲连接数
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	SplitType    string `mapstructure:"split_type"`    // 切分策略：paragraph, sentence, length, recursive
	ChunkSize    int    `mapstructure:"chunk_size"`    // 分块大小
	ChunkOverlap int    `mapstructure:"chunk_overlap"` // 分块重叠大小
}

// SearchConfig 检索配置
type SearchConfig struct {
	Limit    int     `mapstructure:"limit"`     // 检索结果数量限制
	MinScore float32 `mapstructure:"min_score"` // 最低相似度分数
}

// WebConfig 网页抓取配置
type WebConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`    // 单页抓取超时
	UserAgent string        `mapstructure:"user_agent"` // 请求User-Agent
	RateLimit float64       `mapstructure:"rate_limit"` // 每秒请求数上限
	MaxDepth  int           `mapstructure:"max_depth"`  // 爬取深度上限
}

// Load 从文件和环境变量加载配置
// 加载顺序：.env文件 -> 配置文件 -> 环境变量覆盖
func Load(configPath string) (*Config, error) {
	// .env文件不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		// 配置文件可选，全部使用默认值和环境变量
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("WEBQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验配置的合法性
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if ok := isValidationErrors(err, &errs); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("invalid config: field %s failed validation %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Storage.Type == "minio" && cfg.Storage.Endpoint == "" {
		return fmt.Errorf("invalid config: storage.endpoint is required when storage.type is minio")
	}
	if cfg.VectorDB.Type == "pgvector" && cfg.VectorDB.Path == "" {
		return fmt.Errorf("invalid config: vectordb.path is required when vectordb.type is pgvector")
	}
	if cfg.Queue.Enable && cfg.Queue.RedisAddr == "" {
		return fmt.Errorf("invalid config: queue.redis_addr is required when queue is enabled")
	}

	return nil
}

// isValidationErrors 判断错误是否为字段校验错误集合
func isValidationErrors(err error, target *validator.ValidationErrors) bool {
	if errs, ok := err.(validator.ValidationErrors); ok {
		*target = errs
		return true
	}
	return false
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "webqa")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.path", "./data/vectors")
	v.SetDefault("vectordb.dim", 1536)
	v.SetDefault("vectordb.distance", "cosine")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embed.batch_size", 16)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 86400)

	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/webqa.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("document.split_type", "recursive")
	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)

	v.SetDefault("search.limit", 5)
	v.SetDefault("search.min_score", 0.7)

	v.SetDefault("web.timeout", "30s")
	v.SetDefault("web.user_agent", "")
	v.SetDefault("web.rate_limit", 2)
	v.SetDefault("web.max_depth", 2)
}
