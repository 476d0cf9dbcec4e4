// Package storage はアップロードファイルのローカル保存を提供します。
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidName は保存ディレクトリ外を指すファイル名に対して返ります。
var ErrInvalidName = errors.New("invalid stored file name")

// StoredFile は保存済みファイルの情報です。
type StoredFile struct {
	Name         string
	Path         string
	OriginalName string
	Size         int64
}

// Local はファイルを単一ディレクトリに保存します。
type Local struct {
	dir string
}

// NewLocal は dir を作成し Local を返します。
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{dir: abs}, nil
}

// Dir は保存ディレクトリの絶対パスです。
func (l *Local) Dir() string {
	return l.dir
}

// SaveMultipart はアップロードを "<uuid><拡張子>" の名前で保存します。
func (l *Local) SaveMultipart(file *multipart.FileHeader) (*StoredFile, error) {
	if file == nil {
		return nil, errors.New("file header is nil")
	}
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	return l.Save(src, file.Filename)
}

// Save は r の内容を originalName の拡張子を引き継いだ一意な名前で保存します。
func (l *Local) Save(r io.Reader, originalName string) (*StoredFile, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	path := filepath.Join(l.dir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create stored file: %w", err)
	}
	size, copyErr := io.Copy(dst, r)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write stored file: %w", errors.Join(copyErr, closeErr))
	}

	return &StoredFile{Name: name, Path: path, OriginalName: originalName, Size: size}, nil
}

// Resolve は保存名を絶対パスに変換します。パス区切りを含む名前は拒否します。
func (l *Local) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	return filepath.Join(l.dir, name), nil
}

// Contains は path が保存ディレクトリ直下のファイルかどうかを返します。
func (l *Local) Contains(path string) bool {
	return filepath.Dir(filepath.Clean(path)) == l.dir
}

// Exists は path のファイルが存在するかを返します。
func (l *Local) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Remove は paths を削除します。既に存在しないファイルは無視します。
func (l *Local) Remove(paths ...string) error {
	var errs []error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if !l.Contains(path) {
			errs = append(errs, fmt.Errorf("%s: %w", path, ErrInvalidName))
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveAfter は d 経過後に path を削除します。返り値の Timer で取り消せます。
func (l *Local) RemoveAfter(path string, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		_ = l.Remove(path)
	})
}
