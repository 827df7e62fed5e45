package helpers

import (
	"bytes"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/editbot/core/logger"
	"github.com/m3rciful/editbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("payload", action),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// ReplyText replies to the incoming message with raw text.
func ReplyText(c tele.Context, text string) error {
	return sendAsync(c, "reply.text", "sendMessage", func() error {
		return c.Reply(text)
	})
}

// ReplyTextNow replies synchronously, bypassing the dispatcher queue.
// Use it when the message must reach the chat before a later send,
// such as a progress notification ahead of the result.
func ReplyTextNow(c tele.Context, text string) error {
	return c.Reply(text)
}

// SendPhotoURL sends a photo by remote URL; Telegram fetches the file itself.
func SendPhotoURL(c tele.Context, url, caption string) error {
	photo := &tele.Photo{File: tele.FromURL(url), Caption: caption}
	return sendAsync(c, "send.photo_url", "sendPhoto", func() error {
		return c.Send(photo)
	})
}

// SendPhotoBytes uploads and sends an in-memory image.
// The send runs synchronously: the payload reader is not replayable,
// so it must not go through the retrying dispatcher.
func SendPhotoBytes(c tele.Context, data []byte, caption string) error {
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(data)), Caption: caption}
	return c.Send(photo)
}
