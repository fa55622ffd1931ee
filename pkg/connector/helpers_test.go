package connector

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeResponse 是 fakeRunner 按顺序返回的一次结果
type fakeResponse struct {
	out string
	err error
}

// fakeRunner 记录收到的命令行，按顺序回放预设结果
type fakeRunner struct {
	calls     []string
	liveCalls []string
	responses []fakeResponse
	liveErrs  []error // RunLive 按顺序消费，用完后返回 liveErr
	liveErr   error
}

func (f *fakeRunner) Run(ctx context.Context, commandLine string) (string, error) {
	f.calls = append(f.calls, commandLine)
	if len(f.responses) == 0 {
		return "", nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.out, r.err
}

func (f *fakeRunner) RunLive(ctx context.Context, commandLine string, w io.Writer) error {
	f.liveCalls = append(f.liveCalls, commandLine)
	if len(f.liveErrs) > 0 {
		err := f.liveErrs[0]
		f.liveErrs = f.liveErrs[1:]
		return err
	}
	return f.liveErr
}

type fakePrompter struct {
	answer   bool
	asked    []string
	warnings []string
}

func (p *fakePrompter) Warn(message string) { p.warnings = append(p.warnings, message) }

func (p *fakePrompter) Confirm(question string, defaultAnswer bool) bool {
	p.asked = append(p.asked, question)
	return p.answer
}

func newTestConnector(t *testing.T, cfg Config, runner *fakeRunner, prompter *fakePrompter, opts ...Option) *Connector {
	t.Helper()
	opts = append([]Option{WithRunner(runner), WithPrompter(prompter), WithOutput(io.Discard)}, opts...)
	return New(cfg, opts...)
}

func mustGetCommand(t *testing.T, c *Connector, sub, params string) *Command {
	t.Helper()
	cmd, err := c.GetCommand(sub, params)
	require.NoError(t, err)
	return cmd
}
