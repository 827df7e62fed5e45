package edit

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strings"
	"testing"

	"github.com/m3rciful/editbot/bot/history"
	"github.com/m3rciful/editbot/bot/imaging"
	"github.com/m3rciful/editbot/bot/openai"
	"github.com/m3rciful/editbot/bot/session"
)

type fakeFetcher struct {
	data    []byte
	path    string
	err     error
	gotRefs []string
}

func (f *fakeFetcher) Fetch(_ context.Context, photoRef string) ([]byte, string, error) {
	f.gotRefs = append(f.gotRefs, photoRef)
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.path, nil
}

type fakeClient struct {
	result     *openai.Result
	err        error
	calls      int
	gotPrompt  string
	gotPayload []byte
}

func (f *fakeClient) SubmitEdit(_ context.Context, req openai.Request) (*openai.Result, error) {
	f.calls++
	f.gotPrompt = req.Instruction
	if req.Image != nil {
		f.gotPayload = req.Image.Data
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type memRecorder struct {
	records []history.Record
}

func (m *memRecorder) Record(_ context.Context, rec history.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecorder) Stats(context.Context) (history.Stats, error) {
	return history.Stats{}, nil
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 12; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 180, B: 60, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc      *Service
	fetcher  *fakeFetcher
	client   *fakeClient
	recorder *memRecorder
	store    session.Store
}

func newFixture(t *testing.T, mutate func(*fakeFetcher, *fakeClient)) *fixture {
	t.Helper()
	fetcher := &fakeFetcher{data: smallPNG(t), path: "photos/file_1.jpg"}
	client := &fakeClient{result: &openai.Result{URL: "https://cdn.example/out.png"}}
	if mutate != nil {
		mutate(fetcher, client)
	}
	recorder := &memRecorder{}
	store := session.NewMemoryStore()
	svc, err := NewService(Options{
		Sessions:   store,
		Fetcher:    fetcher,
		Client:     client,
		Recorder:   recorder,
		TargetSize: 8,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, fetcher: fetcher, client: client, recorder: recorder, store: store}
}

func TestHandleTextWithoutPhoto(t *testing.T) {
	f := newFixture(t, nil)

	reply := f.svc.HandleText(context.Background(), 7, 7, "make it blue", nil)
	if reply.Text != msgSendPhotoFirst {
		t.Errorf("reply = %q, want send-photo-first prompt", reply.Text)
	}
	if f.client.calls != 0 {
		t.Errorf("upstream called %d times, want 0", f.client.calls)
	}
}

func TestPhotoThenTextHappyPathURL(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if reply := f.svc.HandlePhoto(ctx, 7, "file-abc"); reply.Text != msgPhotoSaved {
		t.Errorf("photo reply = %q", reply.Text)
	}

	var progress []string
	reply := f.svc.HandleText(ctx, 7, 100, "  make it blue  ", func(r Reply) {
		progress = append(progress, r.Text)
	})

	if len(progress) != 1 || progress[0] != msgProcessing {
		t.Errorf("progress = %v, want single processing message", progress)
	}
	if reply.PhotoURL != "https://cdn.example/out.png" {
		t.Errorf("reply PhotoURL = %q", reply.PhotoURL)
	}
	if reply.Caption != msgDone {
		t.Errorf("reply Caption = %q", reply.Caption)
	}
	if len(f.fetcher.gotRefs) != 1 || f.fetcher.gotRefs[0] != "file-abc" {
		t.Errorf("fetched refs = %v", f.fetcher.gotRefs)
	}
	if f.client.gotPrompt != "make it blue" {
		t.Errorf("prompt = %q, want trimmed instruction", f.client.gotPrompt)
	}
	if len(f.client.gotPayload) == 0 {
		t.Error("upstream received no image payload")
	}

	// The pending photo is consumed; a second instruction starts over.
	again := f.svc.HandleText(ctx, 7, 100, "more", nil)
	if again.Text != msgSendPhotoFirst {
		t.Errorf("second reply = %q, want send-photo-first prompt", again.Text)
	}

	if len(f.recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(f.recorder.records))
	}
	rec := f.recorder.records[0]
	if rec.Outcome != history.OutcomeOK || rec.ResultKind != "url" {
		t.Errorf("record outcome=%q kind=%q", rec.Outcome, rec.ResultKind)
	}
	if rec.Prompt != "make it blue" || rec.UserID != 7 || rec.ChatID != 100 {
		t.Errorf("record = %+v", rec)
	}
}

func TestPhotoThenTextBytesResult(t *testing.T) {
	f := newFixture(t, func(_ *fakeFetcher, c *fakeClient) {
		c.result = &openai.Result{Data: []byte("edited bytes")}
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "sharpen", nil)

	if string(reply.PhotoData) != "edited bytes" {
		t.Errorf("reply PhotoData = %q", reply.PhotoData)
	}
	if reply.PhotoURL != "" {
		t.Errorf("reply PhotoURL should be empty, got %q", reply.PhotoURL)
	}
	if len(f.recorder.records) != 1 || f.recorder.records[0].ResultKind != "bytes" {
		t.Errorf("record kind = %v", f.recorder.records)
	}
}

func TestSecondPhotoReplacesFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-old")
	f.svc.HandlePhoto(ctx, 7, "file-new")
	f.svc.HandleText(ctx, 7, 100, "go", nil)

	if len(f.fetcher.gotRefs) != 1 || f.fetcher.gotRefs[0] != "file-new" {
		t.Errorf("fetched refs = %v, want only file-new", f.fetcher.gotRefs)
	}
}

func TestEmptyInstructionKeepsSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "   ", nil)
	if reply.Text != msgEmptyInstruction {
		t.Errorf("reply = %q", reply.Text)
	}
	if !f.store.Has(7) {
		t.Error("pending photo was consumed by an empty instruction")
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if reply := f.svc.HandleCancel(ctx, 7); reply.Text != msgNothingToCancel {
		t.Errorf("cancel without photo = %q", reply.Text)
	}

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	if reply := f.svc.HandleCancel(ctx, 7); reply.Text != msgCancelled {
		t.Errorf("cancel with photo = %q", reply.Text)
	}
	if f.store.Has(7) {
		t.Error("session survived cancel")
	}
}

func TestRejectedErrorSurfacesMessage(t *testing.T) {
	f := newFixture(t, func(_ *fakeFetcher, c *fakeClient) {
		c.err = &openai.RejectedError{Status: 429, Message: "rate limited"}
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "go", nil)

	if !strings.Contains(reply.Text, "rate limited") {
		t.Errorf("reply = %q, want upstream message surfaced", reply.Text)
	}
	if strings.Contains(reply.Text, "Azure") {
		t.Errorf("region hint should not appear for %q", reply.Text)
	}
	if f.recorder.records[0].Outcome != history.OutcomeRejected {
		t.Errorf("outcome = %q", f.recorder.records[0].Outcome)
	}
}

func TestRejectedRegionHint(t *testing.T) {
	f := newFixture(t, func(_ *fakeFetcher, c *fakeClient) {
		c.err = &openai.RejectedError{Status: 403, Message: "Country, region, or territory not supported"}
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "go", nil)
	if !strings.Contains(reply.Text, "Azure OpenAI") {
		t.Errorf("reply = %q, want region hint appended", reply.Text)
	}
}

func TestTimeoutOutcome(t *testing.T) {
	f := newFixture(t, func(_ *fakeFetcher, c *fakeClient) {
		c.err = openai.ErrTimeout
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "go", nil)
	if !strings.Contains(reply.Text, "не ответил вовремя") {
		t.Errorf("reply = %q", reply.Text)
	}
	if f.recorder.records[0].Outcome != history.OutcomeTimeout {
		t.Errorf("outcome = %q", f.recorder.records[0].Outcome)
	}
}

func TestEmptyUpstreamResult(t *testing.T) {
	f := newFixture(t, func(_ *fakeFetcher, c *fakeClient) {
		c.err = openai.ErrEmptyResult
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "go", nil)
	if !strings.Contains(reply.Text, "не удалось извлечь") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestDownloadErrorSurfacesStatus(t *testing.T) {
	f := newFixture(t, func(fe *fakeFetcher, _ *fakeClient) {
		fe.err = &DownloadError{Status: 404}
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "go", nil)
	if !strings.Contains(reply.Text, "HTTP 404") {
		t.Errorf("reply = %q", reply.Text)
	}
	if f.client.calls != 0 {
		t.Errorf("upstream called %d times after failed download", f.client.calls)
	}
}

func TestTransportErrorHidesDetails(t *testing.T) {
	// The file-download URL embeds the bot token, so a wrapped transport
	// error must never be echoed back to the chat.
	f := newFixture(t, func(fe *fakeFetcher, _ *fakeClient) {
		fe.err = &url.Error{
			Op:  "Get",
			URL: "https://api.telegram.org/file/bot123456:SECRET-TOKEN/photos/file_1.jpg",
			Err: errors.New("dial tcp: i/o timeout"),
		}
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "go", nil)

	if reply.Text != msgInternalError {
		t.Errorf("reply = %q, want fixed internal-error text", reply.Text)
	}
	if strings.Contains(reply.Text, "SECRET-TOKEN") || strings.Contains(reply.Text, "api.telegram.org") {
		t.Errorf("reply leaks transport details: %q", reply.Text)
	}
	if f.recorder.records[0].Outcome != history.OutcomeError {
		t.Errorf("outcome = %q", f.recorder.records[0].Outcome)
	}
}

func TestUnknownFormatRejected(t *testing.T) {
	f := newFixture(t, func(fe *fakeFetcher, _ *fakeClient) {
		fe.data = []byte("definitely not an image")
		fe.path = "photos/file_1.bin"
	})
	ctx := context.Background()

	f.svc.HandlePhoto(ctx, 7, "file-abc")
	reply := f.svc.HandleText(ctx, 7, 100, "go", nil)
	if !strings.Contains(reply.Text, "не распознан") {
		t.Errorf("reply = %q", reply.Text)
	}
	if f.client.calls != 0 {
		t.Errorf("upstream called %d times for unrecognized format", f.client.calls)
	}
	if f.recorder.records[0].Outcome != history.OutcomeError {
		t.Errorf("outcome = %q", f.recorder.records[0].Outcome)
	}
}

func TestByteCapRejected(t *testing.T) {
	fetcher := &fakeFetcher{data: smallPNG(t), path: "photos/big.png"}
	client := &fakeClient{}
	svc, err := NewService(Options{
		Sessions:   session.NewMemoryStore(),
		Fetcher:    fetcher,
		Client:     client,
		TargetSize: 8,
		Limits:     imaging.Limits{MaxBytes: 10},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	svc.HandlePhoto(ctx, 7, "file-abc")
	reply := svc.HandleText(ctx, 7, 100, "go", nil)
	if !strings.Contains(reply.Text, "слишком большое") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestGreeting(t *testing.T) {
	f := newFixture(t, nil)
	if !strings.Contains(f.svc.Greeting(), "фото-редактор") {
		t.Errorf("greeting = %q", f.svc.Greeting())
	}
}
