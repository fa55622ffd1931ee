package connector

import (
	"context"
	"io"
	"log/slog"
	"time"

	"revvault/pkg/logging"

	"github.com/jmgilman/go/errors"
)

// Command 是一条已经拼好的 svn 命令
type Command struct {
	connector   *Connector
	commandLine string
	target      string // 最后一个本地路径参数，升级恢复的目标

	cacheEnabled     bool
	cacheTTL         time.Duration
	cacheInvalidator string
}

func (c *Command) CommandLine() string {
	return c.commandLine
}

// WithCache 通过缓存管理器记忆命令输出，键为 "command:<命令行>"
func (c *Command) WithCache(ttl time.Duration, invalidator string) *Command {
	c.cacheEnabled = true
	c.cacheTTL = ttl
	c.cacheInvalidator = invalidator
	return c
}

func (c *Command) cacheKey() string {
	return "command:" + c.commandLine
}

// Run 执行命令并返回标准输出
func (c *Command) Run(ctx context.Context) (string, error) {
	m := c.connector.cache
	useCache := c.cacheEnabled && m != nil

	if useCache {
		var cached string
		if hit, _ := m.Get(ctx, c.cacheKey(), c.cacheInvalidator, &cached); hit {
			return cached, nil
		}
	}

	var output string
	err := c.execute(ctx, func(ctx context.Context) error {
		var err error
		output, err = c.connector.runner.Run(ctx, c.commandLine)
		return err
	})
	if err != nil {
		return "", err
	}

	if useCache {
		_ = m.Set(ctx, c.cacheKey(), output, c.cacheInvalidator, c.cacheTTL)
	}
	return output, nil
}

// RunLive 执行命令，输出实时写到 w，不做缓存
func (c *Command) RunLive(ctx context.Context, w io.Writer) error {
	return c.execute(ctx, func(ctx context.Context) error {
		return c.connector.runner.RunLive(ctx, c.commandLine, w)
	})
}

// execute 执行一次，遇到 "需要 svn upgrade" 时走恢复流程:
// 1. 提示用户并确认
// 2. 对同一个工作副本执行 svn upgrade
// 3. 原命令重试且只重试一次
func (c *Command) execute(ctx context.Context, invoke func(context.Context) error) error {
	started := time.Now()
	err := invoke(ctx)
	logging.LogOperation(ctx, c.connector.logger, "svn", started, err,
		slog.String("cmd", c.connector.maskSecrets(c.commandLine)))
	if err == nil {
		return nil
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Code != UpgradeRequiredCode || c.target == "" {
		return err
	}

	upgraded, upgradeErr := c.connector.upgradeWorkingCopy(ctx, cmdErr, c.target)
	if upgradeErr != nil {
		return upgradeErr
	}
	if !upgraded {
		return err
	}

	started = time.Now()
	err = invoke(ctx)
	logging.LogOperation(ctx, c.connector.logger, "svn (retry)", started, err,
		slog.String("cmd", c.connector.maskSecrets(c.commandLine)))
	return err
}

// upgradeWorkingCopy 返回 false 表示用户拒绝了升级
func (c *Connector) upgradeWorkingCopy(ctx context.Context, cause *CommandError, target string) (bool, error) {
	c.prompter.Warn(cause.Message)
	if !c.prompter.Confirm(`Run "svn upgrade"`, false) {
		return false, nil
	}

	upgrade, err := c.GetCommand("upgrade", "{"+target+"}")
	if err != nil {
		return false, err
	}

	// 升级命令本身不再触发恢复流程
	if err := c.runner.RunLive(ctx, upgrade.commandLine, c.out); err != nil {
		return false, err
	}
	return true, nil
}
