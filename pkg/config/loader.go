package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultBugRegexps 默认的 Bug 号提取规则，第 1 个捕获组即 Bug ID
var DefaultBugRegexps = []string{
	`(?i)\b(?:bug|bugs|issue|issues|fixes|fixed|refs)\s*[:#]?\s*#?(\d+)`,
	`\b([A-Z][A-Z0-9]+-\d+)\b`,
}

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .revvault
		viper.AddConfigPath(".revvault")
		// 3. 用户主目录下的 .revvault
		viper.AddConfigPath(filepath.Join(home, ".revvault"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 读取环境变量 (RV_REPOSITORY_CONNECTOR_USERNAME 等)
	viper.SetEnvPrefix("RV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，可能全靠默认值/环境变量
		// 但如果是配置文件格式错，那就是错
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else if viper.GetBool("log.verbose") {
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 版本库连接
	viper.SetDefault("repository-connector.binary", "svn")
	viper.SetDefault("repository-connector.username", "")
	viper.SetDefault("repository-connector.password", "")
	viper.SetDefault("repository-connector.timeout", "1200s")
	viper.SetDefault("repository-connector.last-revision-cache-duration", "10 minutes")

	// 存储默认值: 索引数据库与缓存文件都放这里
	home, _ := os.UserHomeDir()
	viper.SetDefault("storage.path", filepath.Join(home, ".revvault"))

	// 数据库默认值
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.dbname", "revvault")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.log-sql", false)

	// 结果缓存
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.backend", "disk")
	viper.SetDefault("cache.redis-url", "redis://localhost:6379/0")

	// log 命令
	viper.SetDefault("log.verbose", false)
	viper.SetDefault("log.limit", 10)
	viper.SetDefault("log.message-limit", 68)

	viper.SetDefault("bugs.log-regex", DefaultBugRegexps)
}
