package logger

import (
	"context"
	log "log/slog"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

// 握手与心跳命令不记录
var quietMongoCommands = map[string]struct{}{
	"hello":       {},
	"isMaster":    {},
	"ping":        {},
	"endSessions": {},
}

func NewMongoMonitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			if _, ok := quietMongoCommands[evt.CommandName]; ok {
				return
			}
			log.InfoContext(ctx, "MongoDB Started",
				log.String("command", evt.CommandName),
				log.String("database", evt.DatabaseName),
				log.String("request_id", strconv.FormatInt(evt.RequestID, 10)),
				log.String("cmd_detail", truncate(evt.Command.String())),
			)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			if _, ok := quietMongoCommands[evt.CommandName]; ok {
				return
			}
			fields := []any{
				log.String("command", evt.CommandName),
				log.Duration("latency", evt.Duration),
				log.String("request_id", strconv.FormatInt(evt.RequestID, 10)),
			}
			if evt.Duration > 200*time.Millisecond {
				log.WarnContext(ctx, "MongoDB Slow", fields...)
			} else {
				log.InfoContext(ctx, "MongoDB Success", fields...)
			}
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			log.ErrorContext(ctx, "MongoDB Error",
				log.String("command", evt.CommandName),
				log.Duration("latency", evt.Duration),
				log.String("request_id", strconv.FormatInt(evt.RequestID, 10)),
				log.Any("err", evt.Failure),
			)
		},
	}
}
