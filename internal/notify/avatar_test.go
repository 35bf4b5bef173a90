package notify

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "upload url gets crop transform",
			in:   "https://cdn.example.com/image/upload/v1/avatars/u1.jpg",
			want: "https://cdn.example.com/image/upload/w_64,h_64,c_fill,g_face/v1/avatars/u1.jpg",
		},
		{
			name: "non-upload url unchanged",
			in:   "https://cdn.example.com/static/u1.jpg",
			want: "https://cdn.example.com/static/u1.jpg",
		},
		{
			name: "only first upload segment rewritten",
			in:   "https://cdn.example.com/upload/upload/u1.jpg",
			want: "https://cdn.example.com/upload/w_64,h_64,c_fill,g_face/upload/u1.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cropURL(tt.in))
		})
	}
}

func TestInitialAvatarURL(t *testing.T) {
	assert.Contains(t, initialAvatarURL("team chat"), "name=T")
	assert.Contains(t, initialAvatarURL("Ålesund"), "name=%C3%85")
	assert.Contains(t, initialAvatarURL(""), "name=%3F")
}

func TestResolve_EmptyURL(t *testing.T) {
	r := NewAvatarResolver(nil, time.Second, slog.Default())

	assert.Nil(t, r.Resolve(context.Background(), ""))
}

func TestResolve_FetchesAndCaches(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	r := NewAvatarResolver(srv.Client(), time.Second, slog.Default())

	img := r.Resolve(context.Background(), srv.URL+"/avatar.jpg")
	require.Equal(t, []byte("image-bytes"), img)

	// Second resolve for the same URL is served from cache.
	img = r.Resolve(context.Background(), srv.URL+"/avatar.jpg")
	assert.Equal(t, []byte("image-bytes"), img)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolve_RequestsCroppedURL(t *testing.T) {
	var path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	r := NewAvatarResolver(srv.Client(), time.Second, slog.Default())
	r.Resolve(context.Background(), srv.URL+"/upload/u1.jpg")

	assert.Equal(t, "/upload/w_64,h_64,c_fill,g_face/u1.jpg", path)
}

func TestResolve_ServerErrorReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewAvatarResolver(srv.Client(), time.Second, slog.Default())

	assert.Nil(t, r.Resolve(context.Background(), srv.URL+"/avatar.jpg"))
}

func TestResolve_UnreachableHostReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing is listening any more

	r := NewAvatarResolver(nil, time.Second, slog.Default())

	assert.Nil(t, r.Resolve(context.Background(), srv.URL+"/avatar.jpg"))
}

func TestResolve_FailureIsNotCached(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	r := NewAvatarResolver(srv.Client(), time.Second, slog.Default())

	assert.Nil(t, r.Resolve(context.Background(), srv.URL+"/avatar.jpg"))

	// A later resolve retries instead of pinning the failure.
	assert.Equal(t, []byte("image-bytes"), r.Resolve(context.Background(), srv.URL+"/avatar.jpg"))
}
