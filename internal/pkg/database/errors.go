package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	erDupEntry        = 1062
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
)

// IsRetryable 死锁与锁等待超时，整个事务可以重放
func IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == erLockDeadlock || me.Number == erLockWaitTimeout
}

// IsDuplicate 唯一索引冲突
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}
