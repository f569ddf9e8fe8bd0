package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName 配置文件名
const ConfigFileName = "config.yaml"

// ConfigFilePath 配置文件路径 <data dir>/config.yaml
func ConfigFilePath() string {
	return filepath.Join(GetDataDir(), ConfigFileName)
}

// LoadFile 读取 YAML 配置文件，未出现的字段保留默认值
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析 YAML 配置
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验应用列表
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Apps))
	defaults := 0
	for i, app := range c.Apps {
		if app.ID == "" {
			return fmt.Errorf("apps[%d]: id is required", i)
		}
		if _, dup := seen[app.ID]; dup {
			return fmt.Errorf("apps[%d]: duplicate id %q", i, app.ID)
		}
		seen[app.ID] = struct{}{}
		if app.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one app can be default, got %d", defaults)
	}
	return nil
}

// DatabasePath 数据库文件路径
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(GetDataDir(), "dify-chat.db")
}
