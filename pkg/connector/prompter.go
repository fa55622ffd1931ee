package connector

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter 是与操作员交互的最小接口，目前只有升级恢复流程使用
type Prompter interface {
	Warn(message string)
	Confirm(question string, defaultAnswer bool) bool
}

// ConsolePrompter 从终端读取 y/n
type ConsolePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{in: bufio.NewReader(in), out: out}
}

func (p *ConsolePrompter) Warn(message string) {
	fmt.Fprintf(p.out, "⚠️  %s\n", message)
}

// Confirm 空输入或读不到输入 (非交互环境) 时返回默认值
func (p *ConsolePrompter) Confirm(question string, defaultAnswer bool) bool {
	hint := "[y/N]"
	if defaultAnswer {
		hint = "[Y/n]"
	}
	fmt.Fprintf(p.out, "%s %s? ", question, hint)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return defaultAnswer
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return defaultAnswer
}
