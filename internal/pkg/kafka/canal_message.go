package kafka

import (
	"fmt"
	"strconv"
	"time"
)

// canal 事件类型
const (
	INSERT = "INSERT"
	UPDATE = "UPDATE"
	DELETE = "DELETE"
)

const canalTimeLayout = "2006-01-02 15:04:05"

// CanalMessage 定义了 Canal 推送到 Kafka 的 JSON 数据结构
type CanalMessage struct {
	ID       int64    `json:"id"`
	Database string   `json:"database"`
	Table    string   `json:"table"`
	PKNames  []string `json:"pkNames"`
	IsDDL    bool     `json:"isDdl"`
	Type     string   `json:"type"`
	ES       int64    `json:"es"`
	TS       int64    `json:"ts"`
	SQL      string   `json:"sql"`

	// Data 存储变更后的数据
	Data []map[string]interface{} `json:"data"`

	// Old 存储变更前的数据
	Old []map[string]interface{} `json:"old"`

	// 字段类型元数据
	SqlType   map[string]int    `json:"sqlType"`   // JDBC 类型 ID
	MysqlType map[string]string `json:"mysqlType"` // MySQL 类型描述
}

// StrToUint64 canal 的列值都是字符串，解析失败返回 0
func StrToUint64(v interface{}) uint64 {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return 0
		}
		s = fmt.Sprint(v)
	}
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

// StrToBool tinyint(1) 列
func StrToBool(v interface{}) bool {
	s, _ := v.(string)
	return s == "1" || s == "true"
}

// StrToTime datetime 列，带毫秒时按前缀解析
func StrToTime(v interface{}) time.Time {
	s, _ := v.(string)
	if len(s) > len(canalTimeLayout) {
		s = s[:len(canalTimeLayout)]
	}
	t, err := time.ParseInLocation(canalTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
