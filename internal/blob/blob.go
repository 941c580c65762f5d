package blob

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Store accepts bytes under a key and returns a retrieval URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key builds "<prefix>/<unix-millis>_<filename>" with the filename reduced
// to a safe base name.
func Key(prefix string, at time.Time, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	return prefix + "/" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + name
}

// StudentPhotoKey is the key for a student's uploaded photo.
func StudentPhotoKey(at time.Time, filename string) string {
	return Key("students", at, filename)
}

// Disk writes blobs below Dir and serves them from BaseURL.
type Disk struct {
	Dir     string
	BaseURL string
}

var _ Store = (*Disk)(nil)

// NewDisk creates the upload directory when missing.
func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating upload dir")
	}
	return &Disk{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data to Dir/key.
func (d *Disk) Put(ctx context.Context, key string, data []byte) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" {
		return "", errors.New("empty blob key")
	}
	full := filepath.Join(d.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "creating blob dir")
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing blob %s", clean)
	}
	return d.BaseURL + "/" + clean, nil
}
