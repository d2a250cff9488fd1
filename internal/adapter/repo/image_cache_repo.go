package repo

import (
	"context"
	"fmt"

	"sciencenova/internal/domain"
	"sciencenova/internal/infra"
	"sciencenova/internal/sqlinline"
)

// ImageCachePG implements domain.ImageCache on the story_image_cache table.
type ImageCachePG struct {
	db infra.SQLExecutor
}

func NewImageCache(db infra.SQLExecutor) *ImageCachePG {
	return &ImageCachePG{db: db}
}

// Lookup returns the cached image and bumps its usage counters.
func (c *ImageCachePG) Lookup(ctx context.Context, key string) (*domain.Image, error) {
	var img domain.Image
	if err := c.db.QueryRow(ctx, sqlinline.QLookupCachedImage, key).Scan(&img.Data, &img.MIMEType); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lookup cached image: %w", err)
	}
	return &img, nil
}

// Store upserts the image under key.
func (c *ImageCachePG) Store(ctx context.Context, key string, img domain.Image) error {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	if _, err := c.db.Exec(ctx, sqlinline.QUpsertCachedImage, key, img.Data, mime); err != nil {
		return fmt.Errorf("store cached image: %w", err)
	}
	return nil
}

var _ domain.ImageCache = (*ImageCachePG)(nil)
