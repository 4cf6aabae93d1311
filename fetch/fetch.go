// Package fetch materialises preview sources as files owned by the pipeline. Local
// paths and remote objects alike are copied once into a source directory.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/drummonds/officepreview/preview"
	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// Downloader copies one remote object into w
type Downloader interface {
	Download(ctx context.Context, u *url.URL, w io.Writer) error
}

// Router dispatches a request to the downloader registered for its scheme
type Router struct {
	Dir     string // directory receiving downloaded sources
	Schemes map[string]Downloader
}

// NewRouter creates a router storing downloads below dir
func NewRouter(dir string) *Router {
	return &Router{Dir: dir, Schemes: map[string]Downloader{}}
}

// Register installs d for each of the given schemes
func (r *Router) Register(d Downloader, schemes ...string) {
	for _, scheme := range schemes {
		r.Schemes[scheme] = d
	}
}

// Fetch returns a local copy of the source of req inside Dir. Local sources are
// copied too, so the caller may delete the returned file without touching the original.
func (r *Router) Fetch(ctx context.Context, req preview.DocumentRequest) (string, error) {
	req = req.Normalize()
	source := req.Source

	var (
		d Downloader
		u *url.URL
	)
	parsed, err := url.Parse(source)
	switch {
	case err != nil || len(parsed.Scheme) <= 1:
		// plain path, including windows drive letters
		d, u = localCopier{}, &url.URL{Path: source}
	case parsed.Scheme == "file":
		d, u = localCopier{}, parsed
	default:
		downloader, ok := r.Schemes[strings.ToLower(parsed.Scheme)]
		if !ok {
			return "", fmt.Errorf("no downloader for scheme %q", parsed.Scheme)
		}
		d, u = downloader, parsed
	}

	target := filepath.Join(r.Dir, TargetName(req))
	if !req.ForceRefresh {
		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			Logger.Debug("Source already fetched", "source", source, "path", target)
			return target, nil
		}
	}

	if err := os.MkdirAll(r.Dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create source directory: %w", err)
	}
	tmp := target + ".part-" + ulid.Make().String()
	file, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	Logger.Info("Fetching source", "source", source, "path", target)
	if err := d.Download(ctx, u, file); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to fetch %s: %w", source, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return target, nil
}

// TargetName is the deterministic local file name of a fetched source
func TargetName(req preview.DocumentRequest) string {
	sum := sha256.Sum256([]byte(req.Source))
	name := strings.TrimSuffix(filepath.Base(req.Name), filepath.Ext(req.Name))
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." {
		name = "source"
	}
	ext := req.Extension
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(req.Name), ".")
	}
	target := hex.EncodeToString(sum[:8]) + "_" + name
	if ext != "" {
		target += "." + ext
	}
	return target
}

// localCopier copies plain paths and file:// sources
type localCopier struct{}

func (localCopier) Download(_ context.Context, u *url.URL, w io.Writer) error {
	info, err := os.Stat(u.Path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("source is a directory: %s", u.Path)
	}
	src, err := os.Open(u.Path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}
