package middleware

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"

	"github.com/avisly/playengine/internal/fraud"
)

var (
	errTooManyRequests = errors.New("too many requests, slow down")
	errPanic           = errors.New("internal server error")
)

// Logging logs every call with its procedure, code and duration
func Logging(logger zerolog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			startTime := time.Now()

			reqLogger := logger.With().
				Str("procedure", req.Spec().Procedure).
				Str("client_ip", fraud.ClientIP(req.Header(), req.Peer().Addr)).
				Str("user_agent", req.Header().Get("User-Agent")).
				Logger()

			res, err := next(ctx, req)
			duration := time.Since(startTime)

			var event *zerolog.Event
			code := "ok"
			if err != nil {
				c := connect.CodeOf(err)
				code = c.String()
				switch c {
				case connect.CodeInternal, connect.CodeUnknown:
					event = reqLogger.Error().Err(err)
				default:
					event = reqLogger.Warn().Str("error", err.Error())
				}
			} else {
				event = reqLogger.Info()
			}

			event.
				Str("code", code).
				Dur("duration", duration).
				Msg("Request completed")

			return res, err
		}
	}
}

// Recovery turns a handler panic into an internal error
func Recovery(logger zerolog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (res connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("procedure", req.Spec().Procedure).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(debug.Stack())).
						Msg("Panic recovered")
					res, err = nil, connect.NewError(connect.CodeInternal, errPanic)
				}
			}()
			return next(ctx, req)
		}
	}
}
