package logger

const bodyLimit = 1000

func truncate(s string) string {
	if len(s) > bodyLimit {
		return s[:bodyLimit] + "...[truncated]"
	}
	return s
}
