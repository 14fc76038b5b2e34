package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"bigbrother/internal/transport"
	"bigbrother/pkg/logx"
)

type HandlerFunc func(ctx context.Context, in *transport.Interaction) (transport.Reply, error)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
			if d <= 0 {
				return next(ctx, in)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, in)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in *transport.Interaction) (r transport.Reply, err error) {
			defer func() {
				if p := recover(); p != nil {
					log.Error("panic recovered",
						logx.Any("panic", p),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", p)
				}
			}()
			return next(ctx, in)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
			start := time.Now()
			r, err := next(ctx, in)
			fields := []logx.Field{
				logx.String("cmd", in.Command),
				logx.String("guild_id", in.GuildID),
				logx.String("user_id", in.UserID),
				logx.Duration("dur", time.Since(start)),
			}
			if err != nil {
				log.Warn("command failed", append(fields, logx.Err(err))...)
			} else {
				log.Info("command ok", fields...)
			}
			return r, err
		}
	}
}
