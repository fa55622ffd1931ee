package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var durationUnits = map[string]time.Duration{
	"sec":    time.Second,
	"second": time.Second,
	"min":    time.Minute,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// ParseDuration 解析配置里的缓存时长
// 支持三种写法: 纯数字秒数 ("600")、自然语言 ("10 minutes", "1 hour 30 minutes")、Go 时长 ("90s")
// 空字符串表示不过期
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return 0, fmt.Errorf("malformed duration %q", s)
	}

	var total time.Duration
	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.Atoi(strings.TrimPrefix(fields[i], "+"))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed duration %q", s)
		}

		unit, ok := durationUnits[strings.TrimSuffix(fields[i+1], "s")]
		if !ok {
			return 0, fmt.Errorf("unknown duration unit %q in %q", fields[i+1], s)
		}
		total += time.Duration(n) * unit
	}

	return total, nil
}
