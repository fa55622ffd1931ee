package commands

import (
	"context"
	"fmt"
	"os"

	"revvault/pkg/app"
	"revvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	RV *app.App
)

var rootCmd = &cobra.Command{
	Use:   "rv",
	Short: "RevVault: indexed Subversion history",
	// 【关键】PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		RV, err = app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize revvault: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if RV == nil {
			return nil
		}
		return RV.Close()
	},
	SilenceUsage: true,
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.revvault/config.yaml)")

	// 2. 可以写进 yaml，也可以用命令行参数覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "Directory to store revision indexes and cache")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show executed commands and cache hits")
	for key, flag := range map[string]string{
		"storage.path": "storage-path",
		"log.verbose":  "verbose",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

// targetArg 第一个位置参数是工作副本路径或 URL，默认当前目录
func targetArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// openRepository 打开目标所在版本库，并把索引追到 HEAD
func openRepository(ctx context.Context, args []string) (*app.Repository, error) {
	if RV == nil {
		return nil, fmt.Errorf("app not initialized")
	}

	repo, err := RV.OpenRepository(ctx, targetArg(args))
	if err != nil {
		return nil, err
	}

	if _, err := repo.Log.Refresh(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to refresh revision log: %w", err)
	}
	return repo, nil
}
