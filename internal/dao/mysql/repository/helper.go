package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/random"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysqlDuplicateEntry MySQL 唯一约束冲突错误号
const mysqlDuplicateEntry = 1062

// wrapDBError 包装数据库错误
// 根据错误类型返回不同的错误码：
//   - ErrRecordNotFound -> CodeNotFound
//   - 唯一约束冲突 -> CodeDuplicate
//   - 其他错误（含超时） -> CodeDBError
func wrapDBError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errorx.Wrap(err, classify(err), msg)
}

// wrapDBErrorf 功能同 wrapDBError，支持格式化消息
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errorx.Wrapf(err, classify(err), format, args...)
}

func classify(err error) int {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.CodeNotFound
	}
	if isDuplicate(err) {
		return errorx.CodeDuplicate
	}
	return errorx.CodeDBError
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}

// newID 生成关系库主键：前缀 + 时间戳随机串
func newID(prefix string) string {
	return prefix + random.GetNowAndLenRandomString(14)
}

// now 统一截断到毫秒，与 MySQL datetime(3) 精度一致
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// withDB 把请求上下文绑定到 gorm 会话，超时和取消直接作用到驱动
func withDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx)
}
