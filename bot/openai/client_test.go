package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/editbot/bot/imaging"
)

func testImage() *imaging.NormalizedImage {
	return &imaging.NormalizedImage{
		Data: []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3},
		MIME: "image/png",
		Size: 1024,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "test-key", "gpt-image-1", opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestSubmitEditSendsMultipartForm(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotFields map[string]string
		gotFile   []byte
		gotName   string
		gotType   string
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
		}
		gotFields = map[string]string{}
		for name, values := range r.MultipartForm.Value {
			gotFields[name] = values[0]
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer file.Close()
			gotName = header.Filename
			gotType = header.Header.Get("Content-Type")
			buf, err := io.ReadAll(file)
			if err != nil {
				t.Errorf("read file part: %v", err)
			}
			gotFile = buf
		}
		fmt.Fprint(w, `{"data":[{"url":"https://cdn.example/out.png"}]}`)
	})

	img := testImage()
	result, err := client.SubmitEdit(context.Background(), Request{Image: img, Instruction: "make it blue"})
	if err != nil {
		t.Fatalf("SubmitEdit: %v", err)
	}
	if result.URL != "https://cdn.example/out.png" {
		t.Errorf("result URL = %q", result.URL)
	}
	if len(result.Data) != 0 {
		t.Errorf("result Data should be empty, got %d bytes", len(result.Data))
	}

	if gotPath != "/images/edits" {
		t.Errorf("path = %q, want /images/edits", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	want := map[string]string{"model": "gpt-image-1", "prompt": "make it blue", "size": "1024x1024"}
	for name, value := range want {
		if gotFields[name] != value {
			t.Errorf("field %s = %q, want %q", name, gotFields[name], value)
		}
	}
	if gotName != "input.png" {
		t.Errorf("image filename = %q, want input.png", gotName)
	}
	if gotType != "image/png" {
		t.Errorf("image content type = %q, want image/png", gotType)
	}
	if string(gotFile) != string(img.Data) {
		t.Errorf("image bytes do not round-trip")
	}
}

func TestSubmitEditDecodesBase64Payload(t *testing.T) {
	payload := []byte("edited image bytes")
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(payload))
	})

	result, err := client.SubmitEdit(context.Background(), Request{Image: testImage(), Instruction: "sharpen"})
	if err != nil {
		t.Fatalf("SubmitEdit: %v", err)
	}
	if result.URL != "" {
		t.Errorf("result URL should be empty, got %q", result.URL)
	}
	if string(result.Data) != string(payload) {
		t.Errorf("result Data = %q, want %q", result.Data, payload)
	}
}

func TestSubmitEditPrefersURLOverBase64(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"url":"https://cdn.example/a.png","b64_json":%q}]}`,
			base64.StdEncoding.EncodeToString([]byte("ignored")))
	})

	result, err := client.SubmitEdit(context.Background(), Request{Image: testImage(), Instruction: "x"})
	if err != nil {
		t.Fatalf("SubmitEdit: %v", err)
	}
	if result.URL != "https://cdn.example/a.png" {
		t.Errorf("result URL = %q", result.URL)
	}
	if len(result.Data) != 0 {
		t.Errorf("result Data should be empty when URL is present")
	}
}

func TestSubmitEditRejectedWithMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	})

	_, err := client.SubmitEdit(context.Background(), Request{Image: testImage(), Instruction: "x"})
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want RejectedError", err)
	}
	if rejected.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rejected.Status)
	}
	if rejected.Message != "rate limited" {
		t.Errorf("message = %q, want rate limited", rejected.Message)
	}
}

func TestSubmitEditRejectedNonJSONBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream exploded")
	})

	_, err := client.SubmitEdit(context.Background(), Request{Image: testImage(), Instruction: "x"})
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want RejectedError", err)
	}
	if rejected.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rejected.Status)
	}
	if rejected.Message != "upstream exploded" {
		t.Errorf("message = %q", rejected.Message)
	}
}

func TestSubmitEditMalformedSuccessBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	})

	_, err := client.SubmitEdit(context.Background(), Request{Image: testImage(), Instruction: "x"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestSubmitEditEmptyResult(t *testing.T) {
	for name, body := range map[string]string{
		"empty data array": `{"data":[]}`,
		"blank entry":      `{"data":[{}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			})
			_, err := client.SubmitEdit(context.Background(), Request{Image: testImage(), Instruction: "x"})
			if !errors.Is(err, ErrEmptyResult) {
				t.Fatalf("error = %v, want ErrEmptyResult", err)
			}
		})
	}
}

func TestSubmitEditTimeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	start := time.Now()
	_, err := client.SubmitEdit(context.Background(), Request{Image: testImage(), Instruction: "x"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timed out after %v, expected prompt cancellation", elapsed)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("https://api.openai.com/v1", "   ", "gpt-image-1"); err == nil {
		t.Fatal("expected error for blank api key")
	}

	client, err := NewClient("", "key", "")
	if err != nil {
		t.Fatalf("NewClient with defaults: %v", err)
	}
	if client.baseURL != "https://api.openai.com/v1" {
		t.Errorf("baseURL = %q", client.baseURL)
	}
	if client.model != "gpt-image-1" {
		t.Errorf("model = %q", client.model)
	}
	if client.timeout != 180*time.Second {
		t.Errorf("timeout = %v", client.timeout)
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	client, err := NewClient("https://proxy.internal/v1/", "key", "gpt-image-1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if strings.HasSuffix(client.baseURL, "/") {
		t.Errorf("baseURL keeps trailing slash: %q", client.baseURL)
	}
}
