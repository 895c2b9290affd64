package util

import "strconv"

// ParseUint64 路径参数解析，非正整数返回 false
func ParseUint64(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}
