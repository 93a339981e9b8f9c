package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sopsmith/api/internal/client"
	"github.com/sopsmith/api/internal/model"
)

// Acquisition failures. They are input errors, never stage errors: the
// provider has no side effects beyond producing the handle and does not talk
// to the processing stages.
var (
	ErrInvalidInput      = errors.New("invalid input: empty video payload")
	ErrUnsupportedSource = errors.New("unsupported source: not a recognized video host")
	ErrEmptyRecording    = errors.New("empty recording: no media chunks were captured")
	ErrSourceNotFound    = errors.New("source not found or already consumed")
)

var (
	youtubeWatchRe  = regexp.MustCompile(`^/watch$`)
	youtubeShortsRe = regexp.MustCompile(`^/shorts/([A-Za-z0-9_-]{6,})`)
	youtubePathIDRe = regexp.MustCompile(`^/([A-Za-z0-9_-]{6,})$`)
	vimeoRe         = regexp.MustCompile(`^/(\d+)$`)
)

// Provider normalizes uploads, remote URLs, and live recordings into
// VideoSource handles. Uploaded and captured bytes are staged to object
// storage when configured; otherwise the payload rides inside the handle
// (development fallback). Each handle is held until exactly one run takes it.
type Provider struct {
	storage client.StorageClient

	mu      sync.Mutex
	pending map[string]*model.VideoSource
}

// NewProvider creates a source provider. storage may be nil.
func NewProvider(storage client.StorageClient) *Provider {
	return &Provider{
		storage: storage,
		pending: make(map[string]*model.VideoSource),
	}
}

// AcquireUpload validates and stages an uploaded video file.
func (p *Provider) AcquireUpload(ctx context.Context, title string, file io.Reader, size int64) (*model.VideoSource, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidInput
	}

	return p.stage(ctx, model.OriginUpload, title, data)
}

// AcquireRemote validates that the URL resolves to a recognized
// supported-host video identifier and returns a reference-only handle. Remote
// handles are created inside the start request that consumes them, so they
// are never parked in the pending set.
func (p *Provider) AcquireRemote(rawURL, title string) (*model.VideoSource, error) {
	remoteID, err := canonicalRemoteID(rawURL)
	if err != nil {
		return nil, err
	}

	return &model.VideoSource{
		ID:            uuid.New().String(),
		Origin:        model.OriginRemoteURL,
		RemoteID:      remoteID,
		DeclaredTitle: title,
	}, nil
}

// AcquireRecording closes a live recording session and wraps its buffered
// media as a VideoSource. A session with zero captured bytes is an error.
func (p *Provider) AcquireRecording(ctx context.Context, sess *RecordingSession, title string) (*model.VideoSource, error) {
	data := sess.Stop()
	if len(data) == 0 {
		return nil, ErrEmptyRecording
	}

	return p.stage(ctx, model.OriginLiveCapture, title, data)
}

// Take hands the source to its consuming run, removing it from the provider.
// A source can be taken exactly once.
func (p *Provider) Take(sourceID string) (*model.VideoSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	src, ok := p.pending[sourceID]
	if !ok {
		return nil, ErrSourceNotFound
	}
	delete(p.pending, sourceID)
	return src, nil
}

func (p *Provider) stage(ctx context.Context, origin model.SourceOrigin, title string, data []byte) (*model.VideoSource, error) {
	src := &model.VideoSource{
		ID:            uuid.New().String(),
		Origin:        origin,
		DeclaredTitle: title,
		ByteSize:      int64(len(data)),
	}

	if p.storage != nil {
		key := fmt.Sprintf("sources/%s.mp4", src.ID)
		storageURL, err := p.storage.Upload(ctx, key, bytes.NewReader(data), "video/mp4")
		if err != nil {
			return nil, fmt.Errorf("failed to stage source: %w", err)
		}
		signed, err := p.storage.GetSignedURL(ctx, key, 2*time.Hour)
		if err == nil {
			storageURL = signed
		}
		src.StorageURL = storageURL
	} else {
		src.Payload = data
	}

	p.put(src)
	return src, nil
}

func (p *Provider) put(src *model.VideoSource) {
	p.mu.Lock()
	p.pending[src.ID] = src
	p.mu.Unlock()
}

// canonicalRemoteID maps a supported-host video URL to a stable identifier
// (e.g. "youtube:dQw4w9WgXcQ", "vimeo:76979871").
func canonicalRemoteID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", ErrUnsupportedSource
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if youtubeWatchRe.MatchString(u.Path) {
			if id := u.Query().Get("v"); len(id) >= 6 {
				return "youtube:" + id, nil
			}
			return "", ErrUnsupportedSource
		}
		if m := youtubeShortsRe.FindStringSubmatch(u.Path); m != nil {
			return "youtube:" + m[1], nil
		}
		return "", ErrUnsupportedSource
	case "youtu.be":
		if m := youtubePathIDRe.FindStringSubmatch(u.Path); m != nil {
			return "youtube:" + m[1], nil
		}
		return "", ErrUnsupportedSource
	case "vimeo.com":
		if m := vimeoRe.FindStringSubmatch(u.Path); m != nil {
			return "vimeo:" + m[1], nil
		}
		return "", ErrUnsupportedSource
	default:
		return "", ErrUnsupportedSource
	}
}
