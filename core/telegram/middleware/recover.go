package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/editbot/core/logger"
	tghelpers "github.com/m3rciful/editbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware keeps a panicking handler from taking down the poller.
// The panic is logged with the update's correlation context and swallowed;
// the user simply gets no reply for that update.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				ctx := tghelpers.BuildContext(c)
				logger.Error(ctx, "tg", "panic.recovered",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}
