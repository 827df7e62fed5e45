package app

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/editbot/bot/edit"
	coretelegram "github.com/m3rciful/editbot/core/telegram"
	tghelpers "github.com/m3rciful/editbot/core/telegram/helpers"
	"github.com/m3rciful/editbot/core/telegram/middleware"
)

// TelegramRunOptions builds routes, middlewares and lifecycle hooks for the
// core Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", coretelegram.Command{
		Handler:     a.handleStart,
		Description: "Что умеет бот",
	})
	reg.RegisterCommand("/help", coretelegram.Command{
		Handler:     a.handleStart,
		Description: "Как пользоваться",
		Hidden:      true,
	})
	reg.RegisterCommand("/cancel", coretelegram.Command{
		Handler:     a.handleCancel,
		Description: "Забыть отправленное фото",
	})
	reg.RegisterCommand("/stats", coretelegram.Command{
		Handler:     a.handleStats,
		Description: "Статистика запросов",
		AdminOnly:   true,
	})

	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})

	routes := []coretelegram.Route{
		{Endpoint: "/start", Handler: a.handleStart},
		{Endpoint: "/help", Handler: a.handleStart},
		{Endpoint: "/cancel", Handler: a.handleCancel},
		{Endpoint: "/stats", Handler: adminOnly(a.handleStats)},
		{Endpoint: tele.OnPhoto, Handler: a.handlePhoto},
		{Endpoint: tele.OnText, Handler: a.handleText},
	}

	middlewares := []coretelegram.Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}
	if interval := a.cfg.RateLimit.IntervalMS; interval > 0 {
		middlewares = append(middlewares, coretelegram.Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval: time.Duration(interval) * time.Millisecond,
			}),
		})
	}
	middlewares = append(middlewares, coretelegram.Middleware{
		Name: "logger",
		Use:  middleware.LoggerMiddleware,
	})

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.fetcher.bind(rt.Bot)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

func (a *App) handleStart(c tele.Context) error {
	tghelpers.WithHandler(c, "start")
	return tghelpers.ReplyText(c, a.service.Greeting())
}

func (a *App) handleCancel(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "cancel")
	reply := a.service.HandleCancel(ctx, c.Sender().ID)
	return a.sendReply(c, reply)
}

func (a *App) handlePhoto(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "photo")
	photo := c.Message().Photo
	if photo == nil {
		return nil
	}
	reply := a.service.HandlePhoto(ctx, c.Sender().ID, photo.FileID)
	return a.sendReply(c, reply)
}

func (a *App) handleText(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "text")

	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}

	// The progress message goes out synchronously; queued behind the
	// dispatcher it could overtake the result it announces.
	reply := a.service.HandleText(ctx, c.Sender().ID, chatID, c.Text(), func(progress edit.Reply) {
		_ = tghelpers.ReplyTextNow(c, progress.Text)
	})
	return a.sendReply(c, reply)
}

func (a *App) handleStats(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "stats")
	stats, err := a.recorder.Stats(ctx)
	if err != nil {
		return tghelpers.ReplyText(c, "⚠️ Не удалось получить статистику.")
	}
	text := fmt.Sprintf(
		"📊 Статистика\nВсего запросов: %d\nУспешно: %d\nОшибок: %d\nПользователей: %d\nСреднее время: %.1fс",
		stats.Total, stats.Succeeded, stats.Failed, stats.UniqueUsers, stats.AvgDuration/1000,
	)
	return tghelpers.ReplyText(c, text)
}

// sendReply relays a service reply over the matching transport helper.
func (a *App) sendReply(c tele.Context, reply edit.Reply) error {
	switch {
	case reply.PhotoURL != "":
		return tghelpers.SendPhotoURL(c, reply.PhotoURL, reply.Caption)
	case len(reply.PhotoData) > 0:
		return tghelpers.SendPhotoBytes(c, reply.PhotoData, reply.Caption)
	case reply.Text != "":
		return tghelpers.ReplyText(c, reply.Text)
	}
	return nil
}
