package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 支援 "5s" 這類人類可讀格式的 yaml 時長
type Duration time.Duration

// UnmarshalYAML 實現 yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Std 轉回標準庫型別
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int      `yaml:"port"`
		ReadTimeout  Duration `yaml:"read_timeout"`
		WriteTimeout Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Mongo struct {
		URI            string   `yaml:"uri"`
		Database       string   `yaml:"database"`
		Collection     string   `yaml:"collection"`
		MaxPoolSize    uint64   `yaml:"max_pool_size"`
		ConnectTimeout Duration `yaml:"connect_timeout"`
	} `yaml:"mongo"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadConfig 載入配置檔案
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - path 是硬編碼的配置檔案路徑，非使用者輸入
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// MongoURI 取得 MongoDB 連線字串
func (c *Config) MongoURI() string {
	// 支援環境變數覆蓋（生產環境常用）
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		return uri
	}
	return c.Mongo.URI
}

// applyDefaults 填入未設定欄位的預設值
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(5 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "upsert_demo"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "contacts"
	}
	if c.Mongo.MaxPoolSize == 0 {
		// 小型固定連線池，所有併發請求共用
		c.Mongo.MaxPoolSize = 5
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = Duration(10 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
