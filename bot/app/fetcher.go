package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/editbot/bot/edit"
)

// telegramFetcher downloads original photos from the Bot API file endpoint.
type telegramFetcher struct {
	bot        *tele.Bot
	httpClient *http.Client
}

func newTelegramFetcher(bot *tele.Bot) *telegramFetcher {
	return &telegramFetcher{
		bot: bot,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Fetch resolves the file path for the stored file id and downloads the bytes.
// The returned path hint carries the original extension for format detection.
func (f *telegramFetcher) Fetch(ctx context.Context, photoRef string) ([]byte, string, error) {
	file, err := f.bot.FileByID(photoRef)
	if err != nil {
		return nil, "", fmt.Errorf("resolve file %q: %w", photoRef, err)
	}

	base := strings.TrimRight(f.bot.URL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	fileURL := fmt.Sprintf("%s/file/bot%s/%s", base, f.bot.Token, file.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", &edit.DownloadError{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	return data, file.FilePath, nil
}

// lazyFetcher defers to the real fetcher once the bot instance exists.
// Routes are declared before the bot is constructed, so the service is
// wired with this indirection and the OnStart hook fills it in.
type lazyFetcher struct {
	inner atomic.Pointer[telegramFetcher]
}

func (l *lazyFetcher) bind(bot *tele.Bot) {
	l.inner.Store(newTelegramFetcher(bot))
}

func (l *lazyFetcher) Fetch(ctx context.Context, photoRef string) ([]byte, string, error) {
	f := l.inner.Load()
	if f == nil {
		return nil, "", errors.New("telegram fetcher not initialized")
	}
	return f.Fetch(ctx, photoRef)
}
