package connector

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"revvault/pkg/cache"
	"revvault/pkg/logging"

	"github.com/jmgilman/go/errors"
)

// Config 版本库连接配置
type Config struct {
	Binary   string        // 默认 "svn"
	Username string        // 为空则不传 --username
	Password string        // 为空则不传 --password
	Timeout  time.Duration // 子进程总时长上限

	// LastRevisionCacheDuration 远程 URL 的 "svn info" 结果缓存多久
	LastRevisionCacheDuration time.Duration
}

// Connector 负责构造并执行 svn 命令
type Connector struct {
	cfg      Config
	runner   Runner
	prompter Prompter
	cache    *cache.Manager
	logger   *slog.Logger
	out      io.Writer // 实时输出 (update/revert/upgrade)
}

type Option func(*Connector)

func WithRunner(r Runner) Option {
	return func(c *Connector) { c.runner = r }
}

func WithPrompter(p Prompter) Option {
	return func(c *Connector) { c.prompter = p }
}

// WithCacheManager 启用命令输出缓存，未设置时 Command.WithCache 不生效
func WithCacheManager(m *cache.Manager) Option {
	return func(c *Connector) { c.cache = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) { c.logger = logger }
}

func WithOutput(w io.Writer) Option {
	return func(c *Connector) { c.out = w }
}

func New(cfg Config, opts ...Option) *Connector {
	if cfg.Binary == "" {
		cfg.Binary = "svn"
	}

	c := &Connector{
		cfg:    cfg,
		logger: logging.Discard(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}

	// 默认实现放在 opts 之后，避免无谓地创建
	if c.runner == nil {
		c.runner = NewShellRunner(cfg.Timeout)
	}
	if c.prompter == nil {
		c.prompter = NewConsolePrompter(os.Stdin, os.Stderr)
	}
	return c
}

var (
	pathMarkerRe = regexp.MustCompile(`\{([^{}]*)\}`)
	safeArgRe    = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)
)

// GetCommand 构造命令: svn --non-interactive [--username u] [--password p] <sub> <params>
// params 中 {path} 形式的片段会被单引号转义为字面路径，其余原样拼接
func (c *Connector) GetCommand(subCommand, params string) (*Command, error) {
	if strings.ContainsAny(subCommand, " \t\r\n") {
		return nil, errors.Newf(errors.CodeInvalidInput, "The %q sub-command contains spaces.", subCommand)
	}

	parts := []string{c.cfg.Binary, "--non-interactive"}
	if c.cfg.Username != "" {
		parts = append(parts, "--username", shellArg(c.cfg.Username))
	}
	if c.cfg.Password != "" {
		parts = append(parts, "--password", shellArg(c.cfg.Password))
	}
	if subCommand != "" {
		parts = append(parts, subCommand)
	}

	// 记录最后一个非 URL 的路径，升级恢复需要知道工作副本在哪
	var target string
	rendered := pathMarkerRe.ReplaceAllStringFunc(params, func(marker string) string {
		path := marker[1 : len(marker)-1]
		if !IsURL(path) {
			target = path
		}
		return shellQuote(path)
	})
	if rendered = strings.TrimSpace(rendered); rendered != "" {
		parts = append(parts, rendered)
	}

	return &Command{
		connector:   c,
		commandLine: strings.Join(parts, " "),
		target:      target,
	}, nil
}

// maskSecrets 日志里不能出现密码
func (c *Connector) maskSecrets(commandLine string) string {
	if c.cfg.Password == "" {
		return commandLine
	}
	return strings.ReplaceAll(commandLine, "--password "+shellArg(c.cfg.Password), "--password ***")
}

// IsURL 判断参数是 URL 还是本地路径
func IsURL(path string) bool {
	return strings.Contains(path, "://")
}

// shellQuote POSIX 单引号转义: ' -> '\''
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shellArg 只有在必要时才加引号，让常见命令行保持可读
func shellArg(s string) string {
	if safeArgRe.MatchString(s) {
		return s
	}
	return shellQuote(s)
}
