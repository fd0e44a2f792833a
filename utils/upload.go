package utils

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadURLPrefix is the public path uploaded files are served under.
const UploadURLPrefix = "/uploads"

var (
	ErrUploadTooLarge = errors.New("file too large")
	ErrUploadType     = errors.New("only image files are allowed")
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// SaveUpload stores an uploaded image below dir/yyyy/mm/dd under a random
// name and returns its public URL.
func SaveUpload(fh *multipart.FileHeader, dir string, maxBytes int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !imageExts[ext] {
		return "", ErrUploadType
	}
	if fh.Size > maxBytes {
		return "", ErrUploadTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	day := time.Now().Format("2006/01/02")
	baseDir := filepath.Join(dir, filepath.FromSlash(day))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	name := uuid.NewString() + ext
	dst := filepath.Join(baseDir, name)

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	// headers can lie about the size, so the copy is bounded as well
	written, err := io.Copy(out, &io.LimitedReader{R: src, N: maxBytes + 1})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if written > maxBytes {
		_ = os.Remove(dst)
		return "", ErrUploadTooLarge
	}
	return path.Join(UploadURLPrefix, day, name), nil
}
