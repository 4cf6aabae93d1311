package preview

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ConversionCache maps cache keys to converted artifacts below root. It never
// reports an entry whose file is gone: a missing artifact deletes the entry and
// is treated as a miss.
type ConversionCache struct {
	store   Store
	root    string
	baseURL string
}

// NewConversionCache creates a cache over store for artifacts below root,
// published under baseURL
func NewConversionCache(store Store, root, baseURL string) (*ConversionCache, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact root %s: %w", root, err)
	}
	return &ConversionCache{
		store:   store,
		root:    abs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Root is the absolute artifact directory
func (c *ConversionCache) Root() string {
	return c.root
}

// Has reports whether key has an artifact that currently exists
func (c *ConversionCache) Has(ctx context.Context, key string) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

// Get returns the absolute path of the artifact converted for key
func (c *ConversionCache) Get(ctx context.Context, key string) (string, bool) {
	rel, found, err := c.store.LookupConverted(ctx, key)
	if err != nil {
		Logger.Error("Failed to look up cache entry", "cacheKey", key, "error", err)
		return "", false
	}
	if !found {
		return "", false
	}
	abs := c.AbsPath(rel)
	if !fileExists(abs) {
		Logger.Warn("Cached artifact missing, dropping entry", "cacheKey", key, "path", abs)
		if err := c.store.DeleteConverted(ctx, key); err != nil {
			Logger.Error("Failed to delete stale cache entry", "cacheKey", key, "error", err)
		}
		return "", false
	}
	return abs, true
}

// Put records the artifact at absPath for key, replacing any previous entry
func (c *ConversionCache) Put(ctx context.Context, key, absPath string) error {
	rel, err := c.RelativePath(absPath)
	if err != nil {
		return err
	}
	if err := c.store.SaveConverted(ctx, key, rel); err != nil {
		return fmt.Errorf("failed to save cache entry %s: %w", key, err)
	}
	return nil
}

// Pages returns the cached page images of key in page order
func (c *ConversionCache) Pages(ctx context.Context, key string) ([]string, bool) {
	rels, found, err := c.store.LookupPages(ctx, key)
	if err != nil {
		Logger.Error("Failed to look up page images", "cacheKey", key, "error", err)
		return nil, false
	}
	if !found || len(rels) == 0 {
		return nil, false
	}
	pages := make([]string, 0, len(rels))
	for _, rel := range rels {
		abs := c.AbsPath(rel)
		if !fileExists(abs) {
			Logger.Warn("Cached page image missing, dropping page set", "cacheKey", key, "path", abs)
			c.DropPages(ctx, key)
			return nil, false
		}
		pages = append(pages, abs)
	}
	return pages, true
}

// PutPages records the page images rendered for key
func (c *ConversionCache) PutPages(ctx context.Context, key string, absPaths []string) error {
	rels := make([]string, 0, len(absPaths))
	for _, p := range absPaths {
		rel, err := c.RelativePath(p)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
	}
	if err := c.store.SavePages(ctx, key, rels); err != nil {
		return fmt.Errorf("failed to save page images of %s: %w", key, err)
	}
	return nil
}

// DropPages forgets the page images of key
func (c *ConversionCache) DropPages(ctx context.Context, key string) {
	if err := c.store.DeletePages(ctx, key); err != nil {
		Logger.Error("Failed to delete page image entry", "cacheKey", key, "error", err)
	}
}

// RelativePath turns an absolute artifact path into its slash separated form relative to the root
func (c *ConversionCache) RelativePath(absPath string) (string, error) {
	rel, err := filepath.Rel(c.root, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to relativise %s: %w", absPath, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("artifact %s is outside %s", absPath, c.root)
	}
	return rel, nil
}

// AbsPath resolves a relative artifact path below the root
func (c *ConversionCache) AbsPath(rel string) string {
	return filepath.Join(c.root, filepath.FromSlash(rel))
}

// URL is the external address of an artifact. Escaping is left to the presentation layer.
func (c *ConversionCache) URL(absPath string) (string, error) {
	rel, err := c.RelativePath(absPath)
	if err != nil {
		return "", err
	}
	if c.baseURL == "" {
		return path.Join("/", rel), nil
	}
	return c.baseURL + "/" + rel, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
