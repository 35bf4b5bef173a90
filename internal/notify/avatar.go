package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

const (
	// avatarFetchTimeout is the default time budget for resolving an
	// avatar. The notification must render even if the avatar never
	// resolves, so the budget is short.
	avatarFetchTimeout = 3 * time.Second

	// maxAvatarBytes caps avatar downloads. A 64x64 thumbnail is a
	// few KB; anything near the cap is a misbehaving server.
	maxAvatarBytes = 1024 * 1024

	// cropTransform is inserted into upload URLs so the CDN returns a
	// 64x64 face-centered crop instead of the full image.
	cropTransform = "/upload/w_64,h_64,c_fill,g_face/"

	// initialAvatarFormat generates a letter avatar for group chats,
	// which have no single sender image.
	initialAvatarFormat = "https://ui-avatars.com/api/?name=%s&background=4A90E2&color=fff&size=64"
)

// AvatarResolver fetches and caches notification avatars keyed by
// their source URL. Failures resolve to nil (default icon), never to
// an error: avatar lookup must not block or break notification display.
type AvatarResolver struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration

	group singleflight.Group

	mu    sync.Mutex
	cache map[string][]byte
}

// NewAvatarResolver creates a resolver. A nil client gets a default
// with the fetch timeout applied; a zero timeout gets the default budget.
func NewAvatarResolver(client *http.Client, timeout time.Duration, logger *slog.Logger) *AvatarResolver {
	if timeout <= 0 {
		timeout = avatarFetchTimeout
	}

	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &AvatarResolver{
		client:  client,
		logger:  logger,
		timeout: timeout,
		cache:   make(map[string][]byte),
	}
}

// Resolve returns the avatar image for a source URL, or nil when the
// URL is empty or the fetch fails within the time budget. Results are
// cached by URL; concurrent requests for the same URL share one fetch.
func (r *AvatarResolver) Resolve(ctx context.Context, srcURL string) []byte {
	if srcURL == "" {
		return nil
	}

	r.mu.Lock()
	cached, ok := r.cache[srcURL]
	r.mu.Unlock()

	if ok {
		return cached
	}

	v, err, _ := r.group.Do(srcURL, func() (any, error) {
		return r.fetch(ctx, srcURL)
	})
	if err != nil {
		r.logger.Warn("avatar fetch failed, using default icon",
			slog.String("url", srcURL),
			slog.String("error", err.Error()),
		)

		return nil
	}

	img, _ := v.([]byte)

	r.mu.Lock()
	r.cache[srcURL] = img
	r.mu.Unlock()

	return img
}

func (r *AvatarResolver) fetch(ctx context.Context, srcURL string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, cropURL(srcURL), nil)
	if err != nil {
		return nil, fmt.Errorf("creating avatar request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("avatar fetch returned status %d", resp.StatusCode)
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
	if err != nil {
		return nil, fmt.Errorf("reading avatar body: %w", err)
	}

	return img, nil
}

// cropURL rewrites a CDN upload URL to request a 64x64 face-centered
// crop, so the transform happens server-side rather than on device.
// URLs without an /upload/ segment are returned unchanged.
func cropURL(srcURL string) string {
	return strings.Replace(srcURL, "/upload/", cropTransform, 1)
}

// initialAvatarURL builds a generated letter-avatar URL from the first
// character of a chat title. Used for group chats.
func initialAvatarURL(title string) string {
	initial := "?"

	if title != "" {
		first, _ := utf8.DecodeRuneInString(title)
		initial = strings.ToUpper(string(first))
	}

	return fmt.Sprintf(initialAvatarFormat, url.QueryEscape(initial))
}
