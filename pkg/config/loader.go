package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .tv
		viper.AddConfigPath(".tv")
		// 3. 用户主目录下的 .tv
		viper.AddConfigPath(filepath.Join(home, ".tv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (TV_DATABASE_HOST -> database.host)
	viper.SetEnvPrefix("TV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 只是没找到配置文件不算错，格式错误才是
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	wd, _ := os.Getwd()
	repoPath := filepath.Join(wd, ".tv")

	// 存储默认值
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(repoPath, "objects"))
	viper.SetDefault("storage.s3.region", "us-east-1")

	// 缓存：redis_url 为空时不启用
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 数据库默认值：本地 SQLite，切到 postgres 时使用 host/port
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.path", filepath.Join(repoPath, "meta.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// commit-graph
	viper.SetDefault("commitgraph.source", "store") // store | meta
	viper.SetDefault("commitgraph.hash", "sha256")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("log.level", "info")
}
