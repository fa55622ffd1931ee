package connector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// UpgradeRequiredCode 是 svn 的 E155036: 工作副本由更新版本的客户端创建，需要 "svn upgrade"
const UpgradeRequiredCode = 155036

var errorCodeRe = regexp.MustCompile(`(?m)^svn: E(\d+):`)

// CommandError 是外部命令失败的结构化描述
// Error() 原样保留工具自身的错误文本，便于用户诊断外部原因
type CommandError struct {
	CommandLine string
	Code        int // svn 错误码，解析不到时为 0
	Message     string
	Err         error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("Command:\n%s\nError #%d:\n%s", e.CommandLine, e.Code, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ParseErrorCode 取错误文本中第一个 "svn: E<code>:" 的错误码
func ParseErrorCode(message string) int {
	m := errorCodeRe.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// NewCommandError 由 Runner 在命令失败时构造
func NewCommandError(commandLine, stderr string, cause error) *CommandError {
	message := strings.TrimSpace(stderr)
	if message == "" && cause != nil {
		message = cause.Error()
	}

	return &CommandError{
		CommandLine: commandLine,
		Code:        ParseErrorCode(message),
		Message:     message,
		Err:         cause,
	}
}
