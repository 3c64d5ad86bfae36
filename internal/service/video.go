package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"cursala-gateway/internal/config"
)

// Video errors.
var (
	ErrInvalidVideoName    = errors.New("invalid video name")
	ErrVideoNotFound       = errors.New("video not found")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// VideoService opens videos stored under a local directory.
type VideoService struct {
	dir    string
	logger *slog.Logger
}

// NewVideoService creates a VideoService rooted at cfg.Videos.Dir.
func NewVideoService(cfg *config.Config, logger *slog.Logger) *VideoService {
	return &VideoService{
		dir:    cfg.Videos.Dir,
		logger: logger.With("component", "video_service"),
	}
}

// ValidVideoName reports whether name is a single plain path segment.
func ValidVideoName(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}

// Open returns the named video and its size. The caller closes the file.
func (s *VideoService) Open(name string) (*os.File, int64, error) {
	if !ValidVideoName(name) {
		return nil, 0, ErrInvalidVideoName
	}

	f, err := os.OpenInRoot(s.dir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrVideoNotFound
		}
		return nil, 0, fmt.Errorf("open video %q: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat video %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, ErrVideoNotFound
	}

	s.logger.Debug("serving video", "name", name, "size", info.Size())
	return f, info.Size(), nil
}

// ByteRange is an inclusive byte range within a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for a file of size bytes.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a `Range: bytes=start-end` header against a file of
// size bytes. A missing end means the rest of the file and an end past the
// file is clamped; `bytes=-N` selects the last N bytes. Only the first range
// of a multi-range header is honored.
func ParseRange(header string, size int64) (ByteRange, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: unsupported unit in %q", ErrRangeNotSatisfiable, header)
	}
	spec, _, _ = strings.Cut(spec, ",")

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: malformed range %q", ErrRangeNotSatisfiable, header)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return ByteRange{}, fmt.Errorf("%w: bad suffix range %q", ErrRangeNotSatisfiable, header)
		}
		n = min(n, size)
		return ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return ByteRange{}, fmt.Errorf("%w: start out of bounds in %q", ErrRangeNotSatisfiable, header)
	}

	end := size - 1
	if endStr != "" {
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < start {
			return ByteRange{}, fmt.Errorf("%w: bad end in %q", ErrRangeNotSatisfiable, header)
		}
		end = min(e, end)
	}

	return ByteRange{Start: start, End: end}, nil
}
