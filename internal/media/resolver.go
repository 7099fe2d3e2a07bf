package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
)

// PackSource returns a shared media pack, or nil when it does not exist.
type PackSource interface {
	GetMediaPack(ctx context.Context, id string) (*model.MediaPack, error)
}

type Object struct {
	Name      string
	CreatedAt time.Time
	Size      int64
}

// ObjectLister lists every object under prefix in the media bucket.
type ObjectLister interface {
	ListObjects(ctx context.Context, prefix string) ([]Object, error)
}

type Resolver struct {
	Packs         PackSource
	Objects       ObjectLister
	Bucket        string
	PublicBaseURL string
}

// Resolve returns the campaign's items in the window [start, end). Fewer items
// than requested (or none) means the source ran out.
func (r *Resolver) Resolve(ctx context.Context, c *model.Campaign, start, end int) ([]Item, error) {
	if end <= start {
		return nil, nil
	}

	var urls []string
	var err error
	switch {
	case c.MediaPackID != nil && *c.MediaPackID != "":
		urls, err = r.fromPack(ctx, *c.MediaPackID, start, end)
	case c.UsePrivateStorage:
		urls, err = r.fromStorage(ctx, c.UserID, start, end)
	default:
		return nil, appErrors.NewNoMediaSource(c.ID)
	}
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(urls))
	for i, u := range urls {
		items = append(items, Item{Offset: start + i, URL: u, Kind: Classify(u)})
	}
	return items, nil
}

func (r *Resolver) fromPack(ctx context.Context, packID string, start, end int) ([]string, error) {
	pack, err := r.Packs.GetMediaPack(ctx, packID)
	if err != nil {
		return nil, fmt.Errorf("load media pack %s: %w", packID, err)
	}
	if pack == nil {
		return nil, nil
	}
	all, err := pack.URLs()
	if err != nil {
		return nil, fmt.Errorf("decode media pack %s: %w", packID, err)
	}
	return window(all, start, end), nil
}

func (r *Resolver) fromStorage(ctx context.Context, userID string, start, end int) ([]string, error) {
	if r.Objects == nil {
		return nil, fmt.Errorf("private storage is not configured")
	}
	objects, err := r.Objects.ListObjects(ctx, userID+"/")
	if err != nil {
		return nil, fmt.Errorf("list storage for user %s: %w", userID, err)
	}

	visible := objects[:0:0]
	for _, o := range objects {
		if isPlaceholder(o.Name) {
			continue
		}
		visible = append(visible, o)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if !visible[i].CreatedAt.Equal(visible[j].CreatedAt) {
			return visible[i].CreatedAt.After(visible[j].CreatedAt)
		}
		return visible[i].Name < visible[j].Name
	})

	var urls []string
	for _, o := range window(visible, start, end) {
		urls = append(urls, PublicURL(r.PublicBaseURL, r.Bucket, o.Name))
	}
	return urls, nil
}

func window[T any](all []T, start, end int) []T {
	if start >= len(all) {
		return nil
	}
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func isPlaceholder(name string) bool {
	base := path.Base(name)
	return base == "" || strings.HasPrefix(base, ".") || strings.HasSuffix(name, "/")
}

// PublicURL builds base/bucket/key with every path segment escaped on its
// own, so names with reserved characters stay addressable.
func PublicURL(base, bucket, key string) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
