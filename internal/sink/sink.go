// Package sink writes retrieval results to JSON or CSV files under
// <directory>/<data_type>/.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Data type directories.
const (
	DataVideos    = "videos"
	DataPlaylists = "playlists"
	DataSearch    = "search"
	DataComments  = "comments"
)

const maxSlugLen = 80

// Meta names one write.
type Meta struct {
	Kind   string // job type, or "comments" for fan-out results
	Target string // id or query
	At     time.Time
}

// DataType is the directory records of kind are written to.
func DataType(kind string) string {
	switch kind {
	case "playlist":
		return DataPlaylists
	case "search":
		return DataSearch
	case "comments":
		return DataComments
	default:
		return DataVideos
	}
}

func suffix(kind string) string {
	switch kind {
	case "video":
		return "info"
	case "comments":
		return "comments"
	default:
		return "videos"
	}
}

// Sink accepts finished results.
type Sink interface {
	Write(ctx context.Context, records []retrieval.Record, meta Meta) (string, error)
}

// Config configures a FileSink.
type Config struct {
	Directory string
	Format    string
}

// FileSink writes one file per call.
type FileSink struct {
	dir    string
	format string
	logger *logger.Logger
}

// NewFileSink validates cfg and creates the output directory.
func NewFileSink(cfg Config, log *logger.Logger) (*FileSink, error) {
	if log == nil {
		log = logger.Discard()
	}
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("unsupported output format %q", cfg.Format)
	}
	if cfg.Directory == "" {
		return nil, fmt.Errorf("output directory required")
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &FileSink{dir: cfg.Directory, format: format, logger: log}, nil
}

// Write encodes records into a new file and returns its path.
func (s *FileSink) Write(ctx context.Context, records []retrieval.Record, meta Meta) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.dir, DataType(meta.Kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	at := meta.At
	if at.IsZero() {
		at = time.Now()
	}
	base := fmt.Sprintf("%s_%s_%s_%s", meta.Kind, Slug(meta.Target), suffix(meta.Kind), at.Format("20060102_150405"))
	var (
		data []byte
		err  error
	)
	switch s.format {
	case FormatCSV:
		data, err = encodeCSV(records)
	default:
		data, err = encodeJSON(records)
	}
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", s.format, err)
	}

	path, err := reservePath(dir, base, s.format)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, data); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.logger.Info("results written",
		logger.Field{Key: "path", Value: path},
		logger.Field{Key: "records", Value: len(records)})
	return path, nil
}

// Slug makes target safe for a file name: accents are stripped and anything
// outside [A-Za-z0-9_-] becomes '_'.
func Slug(target string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, target)
	if err != nil {
		s = target
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > maxSlugLen {
		out = out[:maxSlugLen]
	}
	if out == "" {
		return "target"
	}
	return out
}

// reservePath creates an empty file under the first free name so concurrent
// writers with the same base never share a path.
func reservePath(dir, base, ext string) (string, error) {
	path := filepath.Join(dir, base+"."+ext)
	for i := 2; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if err := f.Close(); err != nil {
				_ = os.Remove(path)
				return "", fmt.Errorf("close %s: %w", path, err)
			}
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("reserve %s: %w", path, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.%s", base, i, ext))
	}
}

// writeAtomic replaces the reserved file at path through a private temp file.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
