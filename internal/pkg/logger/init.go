package logger

import (
	"Parley/internal/api/config"
	"io"
	log "log/slog"
	"net"
	"os"
	"time"
)

var LogWriter io.Writer = os.Stdout

// InitLogger 标准输出 JSON，Logstash 可达时同时上报带 trace_id 的记录
func InitLogger(cfg config.LogstashConfig) {
	hStdout := log.NewJSONHandler(os.Stdout, &log.HandlerOptions{Level: log.LevelInfo})

	var finalHandler log.Handler = hStdout

	if cfg.Address == "" {
		LogWriter = os.Stdout
		log.SetDefault(log.New(&ContextHandler{finalHandler}))
		return
	}

	conn, err := net.DialTimeout("tcp", cfg.Address, 2*time.Second)
	if err == nil {
		hRemote := log.NewJSONHandler(conn, &log.HandlerOptions{Level: log.LevelInfo}).
			WithAttrs([]log.Attr{
				log.String("target_index", cfg.Index),
				log.String("log_token", cfg.Token),
			})

		finalHandler = &TeeHandler{
			handlers: []log.Handler{hStdout, &RemoteFilterHandler{next: hRemote}},
		}

		LogWriter = conn
	} else {
		LogWriter = os.Stdout
		log.Warn("Failed to connect to Logstash, logging to stdout only", "err", err)
	}

	log.SetDefault(log.New(&ContextHandler{finalHandler}))
}
