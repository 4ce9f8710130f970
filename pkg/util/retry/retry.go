// Package retry 提供有界重试
// 读路径用 Read 对瞬时错误退避重试；写路径的竞争处理用 Bounded，
// 每次尝试返回类型化结果，绝不无限循环
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"regionchat_server/pkg/errorx"
)

// DefaultAttempts 默认尝试次数
const DefaultAttempts = 3

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Millisecond
	b.MaxInterval = 300 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// Read 对幂等读操作做有界重试，只有 errorx.IsTransient 的错误才会重试
func Read[T any](ctx context.Context, attempts int, fn func(ctx context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	var out T
	op := func() error {
		v, err := fn(ctx)
		if err != nil {
			if errorx.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = v
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Kind 单次尝试的结果类别
type Kind int

const (
	KindOk        Kind = iota // 成功
	KindConflict              // 业务冲突，调用方需改变意图，不重试
	KindTransient             // 后端瞬时错误，不重试写操作
	KindAgain                 // 竞争导致本次作废，可再试
)

// Outcome 类型化结果 Ok(entity) | Conflict(reason) | TransientError
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// Ok 成功
func Ok[T any](v T) Outcome[T] { return Outcome[T]{Kind: KindOk, Value: v} }

// Conflict 业务冲突
func Conflict[T any](reason error) Outcome[T] { return Outcome[T]{Kind: KindConflict, Err: reason} }

// Transient 瞬时错误
func Transient[T any](err error) Outcome[T] { return Outcome[T]{Kind: KindTransient, Err: err} }

// Again 竞争失败，交给 Bounded 决定是否再试
func Again[T any](cause error) Outcome[T] { return Outcome[T]{Kind: KindAgain, Err: cause} }

// Unwrap 转成 (值, 错误)
func (o Outcome[T]) Unwrap() (T, error) {
	if o.Kind == KindOk {
		return o.Value, nil
	}
	var zero T
	return zero, o.Err
}

// Bounded 最多执行 attempts 次 step，step 返回 Again 时短暂退避后再试。
// 次数耗尽仍是 Again 则转为 Transient
func Bounded[T any](ctx context.Context, attempts int, step func(ctx context.Context, attempt int) Outcome[T]) Outcome[T] {
	if attempts < 1 {
		attempts = 1
	}
	b := newBackOff()
	var last Outcome[T]
	for i := 0; i < attempts; i++ {
		last = step(ctx, i)
		if last.Kind != KindAgain {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return Transient[T](ctx.Err())
		case <-time.After(b.NextBackOff()):
		}
	}
	return Transient[T](errorx.ErrServerBusy.WithCause(last.Err))
}
