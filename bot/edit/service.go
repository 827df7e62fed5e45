// Package edit drives the two-step photo-then-instruction conversation:
// remember the photo, take the next text as the instruction, run the
// upstream edit and shape the reply. It knows nothing about Telegram
// transport types so the flow is testable with fakes.
package edit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/editbot/bot/history"
	"github.com/m3rciful/editbot/bot/imaging"
	"github.com/m3rciful/editbot/bot/openai"
	"github.com/m3rciful/editbot/bot/session"
	"github.com/m3rciful/editbot/core/logger"
)

// User-facing messages, kept close to the bot's voice.
const (
	msgGreeting = "👋 Привет! Я — фото-редактор.\n" +
		"1) Отправь фото (JPG/PNG/WEBP)\n" +
		"2) Затем пришли текст — что с ним сделать.\n\n" +
		"Я автоматически подготовлю изображение (кроп/масштаб) и пришлю результат."
	msgPhotoSaved       = "📸 Фото сохранено. Теперь пришли текст — что с ним сделать."
	msgSendPhotoFirst   = "Сначала отправь фото, затем инструкцию 😊"
	msgEmptyInstruction = "Инструкция пустая. Напиши текстом, что сделать с фото."
	msgProcessing       = "🪄 Обрабатываю изображение, это может занять несколько секунд..."
	msgDone             = "✅ Готово!"
	msgCancelled        = "Ок, фото забыто. Пришли новое, когда будешь готов."
	msgNothingToCancel  = "Отменять нечего: фото ещё не было."
	msgInternalError    = "⚠️ Что-то пошло не так. Попробуй ещё раз чуть позже."

	msgRegionHint = "\n\nПохоже, ваш аккаунт/регион не поддерживаются OpenAI Images API. " +
		"Попробуйте другую учётную запись OpenAI или Azure OpenAI, либо свяжитесь с поддержкой OpenAI."
)

// DownloadError reports a failed original-photo download.
type DownloadError struct {
	Status int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("photo download failed: HTTP %d", e.Status)
}

// PhotoFetcher downloads the original photo bytes by its stored reference.
// The path hint, when known, helps format detection for extension sniffing.
type PhotoFetcher interface {
	Fetch(ctx context.Context, photoRef string) (data []byte, pathHint string, err error)
}

// Submitter sends the prepared image and instruction upstream.
type Submitter interface {
	SubmitEdit(ctx context.Context, req openai.Request) (*openai.Result, error)
}

// Reply is what the conversation wants sent back to the chat.
// Exactly one of Text, PhotoURL or PhotoData is set.
type Reply struct {
	Text      string
	PhotoURL  string
	PhotoData []byte
	Caption   string
}

// Options configures a Service.
type Options struct {
	Sessions   session.Store
	Fetcher    PhotoFetcher
	Client     Submitter
	Recorder   history.Recorder
	TargetSize int
	Limits     imaging.Limits
}

// Service implements the conversation flow.
type Service struct {
	sessions   session.Store
	fetcher    PhotoFetcher
	client     Submitter
	recorder   history.Recorder
	targetSize int
	limits     imaging.Limits
}

// NewService wires the conversation flow from its collaborators.
func NewService(opts Options) (*Service, error) {
	if opts.Sessions == nil {
		return nil, errors.New("edit: session store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("edit: photo fetcher is required")
	}
	if opts.Client == nil {
		return nil, errors.New("edit: upstream client is required")
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = history.NewNoop()
	}
	targetSize := opts.TargetSize
	if targetSize <= 0 {
		targetSize = 1024
	}
	return &Service{
		sessions:   opts.Sessions,
		fetcher:    opts.Fetcher,
		client:     opts.Client,
		recorder:   recorder,
		targetSize: targetSize,
		limits:     opts.Limits,
	}, nil
}

// Greeting returns the /start and /help text.
func (s *Service) Greeting() string {
	return msgGreeting
}

// HandlePhoto remembers the photo and asks for the instruction.
// A repeated photo silently replaces the previous one.
func (s *Service) HandlePhoto(ctx context.Context, userID int64, photoRef string) Reply {
	s.sessions.Put(userID, photoRef)
	logger.Debug(ctx, "svc.edits", "photo.pending",
		slog.Int64("user_id", userID),
	)
	return Reply{Text: msgPhotoSaved}
}

// HandleCancel drops the user's pending photo, if any.
func (s *Service) HandleCancel(ctx context.Context, userID int64) Reply {
	if !s.sessions.Has(userID) {
		return Reply{Text: msgNothingToCancel}
	}
	s.sessions.Clear(userID)
	logger.Debug(ctx, "svc.edits", "photo.cancelled",
		slog.Int64("user_id", userID),
	)
	return Reply{Text: msgCancelled}
}

// HandleText runs the second conversation step. When a pending photo
// exists, notify receives a progress message before the slow work starts,
// and the final reply is returned. Any failure surfaces as a user-facing
// text reply; the pending photo is always consumed.
func (s *Service) HandleText(ctx context.Context, userID, chatID int64, text string, notify func(Reply)) Reply {
	instruction := strings.TrimSpace(text)
	if instruction == "" {
		if s.sessions.Has(userID) {
			return Reply{Text: msgEmptyInstruction}
		}
		return Reply{Text: msgSendPhotoFirst}
	}

	sess, ok := s.sessions.Take(userID)
	if !ok {
		return Reply{Text: msgSendPhotoFirst}
	}
	if notify != nil {
		notify(Reply{Text: msgProcessing})
	}

	start := time.Now()
	reply, result, err := s.runEdit(ctx, sess, instruction)
	took := logger.Took(start)

	outcome := classifyOutcome(err)
	attrs := []slog.Attr{
		slog.Int64("user_id", userID),
		slog.String("status", logger.Status(err)),
		slog.String("outcome", outcome),
		slog.String("result", replyKind(result)),
		slog.Duration("duration", took),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeError(err)))
	}
	logger.Event(ctx, "svc.edits", eventLevel(err), "edit.done", attrs...)

	rec := history.Record{
		UserID:     userID,
		ChatID:     chatID,
		Prompt:     instruction,
		Outcome:    outcome,
		ResultKind: replyKind(result),
		Duration:   took,
	}
	if recErr := s.recorder.Record(ctx, rec); recErr != nil {
		logger.Warn(ctx, "svc.history", "record.fail",
			slog.Int64("user_id", userID),
			slog.String("err", recErr.Error()),
		)
	}

	if err != nil {
		return Reply{Text: userErrorMessage(err)}
	}
	return reply
}

// runEdit is the happy path: download, normalize, submit, shape reply.
func (s *Service) runEdit(ctx context.Context, sess session.Session, instruction string) (Reply, *openai.Result, error) {
	original, pathHint, err := s.fetcher.Fetch(ctx, sess.PhotoRef)
	if err != nil {
		return Reply{}, nil, fmt.Errorf("fetch photo: %w", err)
	}

	if _, ok := imaging.DetectFormat(original, pathHint, ""); !ok {
		return Reply{}, nil, imaging.ErrUnknownFormat
	}
	img, err := imaging.Normalize(original, s.targetSize, s.limits)
	if err != nil {
		return Reply{}, nil, fmt.Errorf("normalize photo: %w", err)
	}

	result, err := s.client.SubmitEdit(ctx, openai.Request{
		Image:       img,
		Instruction: instruction,
		Size:        s.targetSize,
	})
	if err != nil {
		return Reply{}, nil, err
	}

	if result.URL != "" {
		return Reply{PhotoURL: result.URL, Caption: msgDone}, result, nil
	}
	return Reply{PhotoData: result.Data, Caption: msgDone}, result, nil
}

// userErrorMessage maps an internal failure onto the reply the user sees.
// Only messages from known error kinds reach the chat; anything else gets
// a fixed text, since raw transport errors can carry file URLs with the
// bot token embedded.
func userErrorMessage(err error) string {
	var rejected *openai.RejectedError
	var download *DownloadError
	var decode *imaging.DecodeError

	switch {
	case errors.As(err, &rejected):
		msg := rejected.Message
		if strings.Contains(msg, "not supported") {
			msg += msgRegionHint
		}
		return "⚠️ Ошибка: " + msg
	case errors.Is(err, openai.ErrTimeout):
		return "⚠️ Ошибка: сервис редактирования не ответил вовремя. Попробуй ещё раз."
	case errors.Is(err, openai.ErrEmptyResult), errors.Is(err, openai.ErrMalformedResponse):
		return "⚠️ Ошибка: не удалось извлечь изображение из ответа."
	case errors.Is(err, imaging.ErrTooLarge):
		return "⚠️ Ошибка: изображение слишком большое. Пришли файл поменьше."
	case errors.Is(err, imaging.ErrUnknownFormat), errors.As(err, &decode):
		return "⚠️ Ошибка: формат изображения не распознан."
	case errors.As(err, &download):
		return fmt.Sprintf("⚠️ Ошибка скачивания файла: HTTP %d", download.Status)
	}
	return msgInternalError
}

func classifyOutcome(err error) string {
	var rejected *openai.RejectedError
	switch {
	case err == nil:
		return history.OutcomeOK
	case errors.Is(err, openai.ErrTimeout):
		return history.OutcomeTimeout
	case errors.As(err, &rejected):
		return history.OutcomeRejected
	}
	return history.OutcomeError
}

func eventLevel(err error) slog.Level {
	if err != nil {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func replyKind(result *openai.Result) string {
	switch {
	case result == nil:
		return ""
	case result.URL != "":
		return "url"
	default:
		return "bytes"
	}
}
