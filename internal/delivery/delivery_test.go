package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

const auth = "Bearer t0ken"

type recorded struct {
	path string
	auth string
	body map[string]string
}

func bridge(t *testing.T, status int, reply string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, recorded{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second, nil), &calls
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBearer(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"Bearer abc", "Bearer abc", nil},
		{"  bearer abc ", "bearer abc", nil},
		{"", "", ErrMissingAuth},
		{"Basic abc", "", ErrNotBearer},
		{"Bearer", "", ErrNotBearer},
	}
	for _, tt := range tests {
		got, err := Bearer(tt.in)
		if tt.wantErr != nil {
			be.True(t, errors.Is(err, tt.wantErr))
			continue
		}
		be.Err(t, err, nil)
		be.Equal(t, got, tt.want)
	}
}

func TestSendMessage(t *testing.T) {
	c, calls := bridge(t, http.StatusOK, `{"success":true,"message":"Message sent to 123"}`)

	r := c.SendMessage(context.Background(), auth, "123", "hello")
	be.Equal(t, r, Result{Success: true, Message: "Message sent to 123"})
	be.Equal(t, len(*calls), 1)
	got := (*calls)[0]
	be.Equal(t, got.path, "/api/send")
	be.Equal(t, got.auth, auth)
	be.Equal(t, got.body, map[string]string{"recipient": "123", "message": "hello"})
}

func TestSendRejectsLocally(t *testing.T) {
	c, calls := bridge(t, http.StatusOK, `{"success":true}`)
	ctx := context.Background()
	ogg := tempFile(t, "note.ogg")
	mp3 := tempFile(t, "note.mp3")

	tests := []struct {
		name string
		r    Result
		want string
	}{
		{"no recipient", c.SendMessage(ctx, auth, "", "x"), "Recipient must be provided"},
		{"no auth", c.SendMessage(ctx, "", "123", "x"), ErrMissingAuth.Error()},
		{"not bearer", c.SendMessage(ctx, "Token abc", "123", "x"), ErrNotBearer.Error()},
		{"no media path", c.SendFile(ctx, auth, "123", ""), "Media path must be provided"},
		{"missing file", c.SendFile(ctx, auth, "123", "/nope/file.png"), "Media file not found: /nope/file.png"},
		{"directory", c.SendFile(ctx, auth, "123", t.TempDir()), "Media file not found"},
		{"audio not ogg", c.SendAudio(ctx, auth, "123", mp3), "Audio must be an Opus .ogg file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.True(t, !tt.r.Success)
			be.True(t, strings.HasPrefix(tt.r.Message, tt.want))
		})
	}
	be.Equal(t, len(*calls), 0)

	r := c.SendAudio(ctx, auth, "123", ogg)
	be.True(t, r.Success)
	be.Equal(t, (*calls)[0].body["media_path"], ogg)
}

func TestSendReportsBridgeFailures(t *testing.T) {
	ctx := context.Background()

	c, _ := bridge(t, http.StatusUnauthorized, "invalid token\n")
	r := c.SendMessage(ctx, auth, "123", "x")
	be.Equal(t, r, Result{Message: "Error: HTTP 401 - invalid token"})

	c, _ = bridge(t, http.StatusOK, "not json")
	r = c.SendMessage(ctx, auth, "123", "x")
	be.Equal(t, r.Message, "Error parsing response: not json")

	c, _ = bridge(t, http.StatusOK, `{"success":false}`)
	r = c.SendMessage(ctx, auth, "123", "x")
	be.Equal(t, r, Result{Message: "Unknown response"})

	unreachable := New("http://127.0.0.1:1", time.Second, nil)
	r = unreachable.SendMessage(ctx, auth, "123", "x")
	be.True(t, !r.Success)
	be.True(t, strings.HasPrefix(r.Message, "Request error: "))
}

func TestDownload(t *testing.T) {
	ctx := context.Background()

	c, calls := bridge(t, http.StatusOK, `{"success":true,"message":"ok","path":"/tmp/media/a.jpg"}`)
	r := c.Download(ctx, auth, "m1", "team@g.us")
	be.Equal(t, r, Result{Success: true, Message: "Media downloaded successfully", Path: "/tmp/media/a.jpg"})
	be.Equal(t, (*calls)[0].path, "/api/download")
	be.Equal(t, (*calls)[0].body, map[string]string{"message_id": "m1", "chat_jid": "team@g.us"})

	c, _ = bridge(t, http.StatusOK, `{"success":false,"message":"media expired"}`)
	r = c.Download(ctx, auth, "m1", "team@g.us")
	be.Equal(t, r, Result{Message: "Failed to download media: media expired"})

	r = c.Download(ctx, auth, "", "team@g.us")
	be.True(t, !r.Success)
}
