package connector

import (
	"context"
	"io"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
)

// Runner 执行一条完整的 shell 命令行
type Runner interface {
	// Run 阻塞执行并返回标准输出
	Run(ctx context.Context, commandLine string) (string, error)

	// RunLive 阻塞执行，输出实时写到 w
	RunLive(ctx context.Context, commandLine string, w io.Writer) error
}

// ShellRunner 通过 "sh -c" 执行命令行
// 路径参数已经在命令行里做好了引号转义，所以需要 shell 来拆分
type ShellRunner struct {
	executor exec.Executor
	timeout  time.Duration
}

// NewShellRunner timeout 是子进程的总时长上限，0 表示不限制
func NewShellRunner(timeout time.Duration) *ShellRunner {
	return &ShellRunner{
		executor: exec.New(exec.WithInheritEnv()),
		timeout:  timeout,
	}
}

func (r *ShellRunner) prepare(ctx context.Context) exec.Executor {
	e := r.executor.Clone().WithContext(ctx)
	if r.timeout > 0 {
		e = e.WithTimeout(r.timeout.String())
	}
	return e
}

func (r *ShellRunner) Run(ctx context.Context, commandLine string) (string, error) {
	res, err := r.prepare(ctx).Run("sh", "-c", commandLine)
	if err != nil {
		return "", toCommandError(commandLine, err)
	}
	return res.Stdout, nil
}

func (r *ShellRunner) RunLive(ctx context.Context, commandLine string, w io.Writer) error {
	_, err := r.prepare(ctx).WithStdout(w).WithPassthrough().Run("sh", "-c", commandLine)
	if err != nil {
		return toCommandError(commandLine, err)
	}
	return nil
}

func toCommandError(commandLine string, err error) error {
	var execErr *exec.ExecError
	if errors.As(err, &execErr) {
		return NewCommandError(commandLine, execErr.Stderr, execErr)
	}
	return NewCommandError(commandLine, "", err)
}
