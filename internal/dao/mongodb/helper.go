package mongodb

import (
	"errors"
	"time"

	"regionchat_server/pkg/errorx"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// wrapMongoErrorf 与关系库的 wrapDBErrorf 对齐的错误分类
func wrapMongoErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	code := errorx.CodeDBError
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		code = errorx.CodeNotFound
	case mongo.IsDuplicateKeyError(err):
		code = errorx.CodeDuplicate
	}
	return errorx.Wrapf(err, code, format, args...)
}

// now 文档库时间精度为毫秒
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
