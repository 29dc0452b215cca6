package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BGVANISH"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Session   SessionConfig   `mapstructure:"session"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PipelineConfig struct {
	// MaxDimension 工作画布最长边
	MaxDimension int `mapstructure:"max_dimension"`
	// MaskPolarity foreground: mask 为前景概率; background: mask 为背景概率
	MaskPolarity string `mapstructure:"mask_polarity"`
}

// SegmenterConfig 外部分割服务配置
// AllowLocalModels / UseCache 随请求下发，由推理服务解释
type SegmenterConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	Model            string        `mapstructure:"model"`
	Timeout          time.Duration `mapstructure:"timeout"`
	AllowLocalModels bool          `mapstructure:"allow_local_models"`
	UseCache         bool          `mapstructure:"use_cache"`
}

type UploadConfig struct {
	MaxSize    int64         `mapstructure:"max_size"`
	URLTimeout time.Duration `mapstructure:"url_timeout"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// SweepSpec cron 表达式
	SweepSpec string `mapstructure:"sweep_spec"`
}

// Load 从 YAML 文件加载配置，环境变量 BGVANISH_* 覆盖文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New 使用默认配置路径加载配置，只有文件不存在时才退回默认值
func New() (*Config, error) {
	path := os.Getenv(envPrefix + "_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Pipeline.MaxDimension <= 0 {
		return fmt.Errorf("pipeline.max_dimension must be positive, got %d", c.Pipeline.MaxDimension)
	}
	switch c.Pipeline.MaskPolarity {
	case "foreground", "background":
	default:
		return fmt.Errorf("pipeline.mask_polarity must be foreground or background, got %q", c.Pipeline.MaskPolarity)
	}
	if c.Upload.MaxSize <= 0 {
		return errors.New("upload.max_size must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("pipeline.max_dimension", d.Pipeline.MaxDimension)
	v.SetDefault("pipeline.mask_polarity", d.Pipeline.MaskPolarity)

	v.SetDefault("segmenter.endpoint", d.Segmenter.Endpoint)
	v.SetDefault("segmenter.model", d.Segmenter.Model)
	v.SetDefault("segmenter.timeout", d.Segmenter.Timeout)
	v.SetDefault("segmenter.allow_local_models", d.Segmenter.AllowLocalModels)
	v.SetDefault("segmenter.use_cache", d.Segmenter.UseCache)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.url_timeout", d.Upload.URLTimeout)

	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.sweep_spec", d.Session.SweepSpec)
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			Mode:            "debug",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxDimension: 1024,
			MaskPolarity: "foreground",
		},
		Segmenter: SegmenterConfig{
			Endpoint:         "http://127.0.0.1:8188/",
			Model:            "Xenova/segformer-b0-finetuned-ade-512-512",
			Timeout:          2 * time.Minute,
			AllowLocalModels: false,
			UseCache:         true,
		},
		Upload: UploadConfig{
			MaxSize:    10 * 1024 * 1024,
			URLTimeout: 20 * time.Second,
		},
		Session: SessionConfig{
			TTL:       30 * time.Minute,
			SweepSpec: "@every 1m",
		},
	}
}
