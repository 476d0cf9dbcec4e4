package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/capability"
)

const (
	defaultOfficeTimeout = 120 * time.Second
	defaultImageTimeout  = 30 * time.Second
)

var (
	// ErrConversionUnavailable は変換ツールが見つからない場合に返ります。
	ErrConversionUnavailable = errors.New("conversion tool unavailable")
	// ErrConversionFailed は変換ツールが失敗した場合に返ります。
	ErrConversionFailed = errors.New("conversion failed")
	// ErrTimeout は変換が時間内に終わらなかった場合に返ります。
	ErrTimeout = errors.New("conversion timed out")
)

// Result は正規化の結果です。失敗時も OutputPath は利用可能なファイルを指します。
type Result struct {
	OutputPath string
	Converted  bool
	Err        error
}

// ImageImporter は画像ファイルを1枚のPDFに取り込みます。
type ImageImporter func(imagePath, pdfPath string) error

// Options は Normalizer の依存と設定です。
type Options struct {
	Office        capability.Resolver
	ImageMagick   capability.Resolver
	Runner        capability.Runner
	ImportImage   ImageImporter
	OfficeTimeout time.Duration
	ImageTimeout  time.Duration
	Logger        *zap.Logger
}

// Normalizer は PDF 以外のアップロードを PDF に変換します。
type Normalizer struct {
	office        capability.Resolver
	magick        capability.Resolver
	runner        capability.Runner
	importImage   ImageImporter
	officeTimeout time.Duration
	imageTimeout  time.Duration
	logger        *zap.Logger
}

// NewNormalizer は Normalizer を生成します。
func NewNormalizer(opts Options) *Normalizer {
	n := &Normalizer{
		office:        opts.Office,
		magick:        opts.ImageMagick,
		runner:        opts.Runner,
		importImage:   opts.ImportImage,
		officeTimeout: opts.OfficeTimeout,
		imageTimeout:  opts.ImageTimeout,
		logger:        opts.Logger,
	}
	if n.runner == nil {
		n.runner = capability.ExecRunner{}
	}
	if n.importImage == nil {
		n.importImage = importImageWithPDFCPU
	}
	if n.officeTimeout <= 0 {
		n.officeTimeout = defaultOfficeTimeout
	}
	if n.imageTimeout <= 0 {
		n.imageTimeout = defaultImageTimeout
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	return n
}

// Normalize は kind に応じて path を PDF に変換します。
// 成功時は元ファイルを削除し、失敗時は元ファイルをそのまま返します。
func (n *Normalizer) Normalize(ctx context.Context, path string, kind Kind) Result {
	switch kind {
	case KindPDF:
		return Result{OutputPath: path}
	case KindImage:
		return n.normalizeImage(ctx, path)
	case KindOffice:
		return n.normalizeOffice(ctx, path)
	default:
		return Result{OutputPath: path, Err: fmt.Errorf("%w: no converter for %s", ErrConversionUnavailable, filepath.Ext(path))}
	}
}

func (n *Normalizer) normalizeImage(ctx context.Context, path string) Result {
	out := pdfPathFor(path)
	if out == path {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + "-image.pdf"
	}
	ctx, cancel := context.WithTimeout(ctx, n.imageTimeout)
	defer cancel()

	importErr := n.importWithTimeout(ctx, path, out)
	if importErr == nil {
		n.removeSource(path)
		return Result{OutputPath: out, Converted: true}
	}
	n.logger.Debug("pdfcpu image import failed, trying imagemagick",
		zap.String("file", filepath.Base(path)), zap.Error(importErr))

	magick := n.magick.Resolve(ctx)
	if !magick.Found {
		if errors.Is(importErr, ErrTimeout) {
			return Result{OutputPath: path, Err: importErr}
		}
		return Result{OutputPath: path, Err: fmt.Errorf("%w: %v (imagemagick not found)", ErrConversionFailed, importErr)}
	}
	if err := n.runner.Run(ctx, magick.Path, path, out); err != nil {
		_ = os.Remove(out)
		return Result{OutputPath: path, Err: classify(ctx, err)}
	}
	if _, err := os.Stat(out); err != nil {
		return Result{OutputPath: path, Err: fmt.Errorf("%w: %s was not produced", ErrConversionFailed, filepath.Base(out))}
	}
	n.removeSource(path)
	return Result{OutputPath: out, Converted: true}
}

// importWithTimeout は pdfcpu の取り込みを ctx の期限付きで実行します。
// 期限切れ後に取り込みが完了した場合、生成されたファイルは削除します。
func (n *Normalizer) importWithTimeout(ctx context.Context, path, out string) error {
	done := make(chan error, 1)
	go func() {
		done <- n.importImage(path, out)
	}()

	select {
	case err := <-done:
		if err != nil {
			_ = os.Remove(out)
		}
		return err
	case <-ctx.Done():
		go func() {
			<-done
			_ = os.Remove(out)
		}()
		return fmt.Errorf("%w: image import: %v", ErrTimeout, ctx.Err())
	}
}

func (n *Normalizer) normalizeOffice(ctx context.Context, path string) Result {
	office := n.office.Resolve(ctx)
	if !office.Found {
		return Result{OutputPath: path, Err: fmt.Errorf("%w: libreoffice not found", ErrConversionUnavailable)}
	}

	ctx, cancel := context.WithTimeout(ctx, n.officeTimeout)
	defer cancel()

	err := n.runner.Run(ctx, office.Path, "--headless", "--convert-to", "pdf", "--outdir", filepath.Dir(path), path)
	if err != nil {
		return Result{OutputPath: path, Err: classify(ctx, err)}
	}

	out := pdfPathFor(path)
	if _, err := os.Stat(out); err != nil {
		return Result{OutputPath: path, Err: fmt.Errorf("%w: %s was not produced", ErrConversionFailed, filepath.Base(out))}
	}
	n.removeSource(path)
	return Result{OutputPath: out, Converted: true}
}

func (n *Normalizer) removeSource(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		n.logger.Warn("failed to remove converted source", zap.String("file", path), zap.Error(err))
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConversionFailed, err)
}

func pdfPathFor(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".pdf"
}

func importImageWithPDFCPU(imagePath, pdfPath string) error {
	return pdfapi.ImportImagesFile([]string{imagePath}, pdfPath, pdfcpu.DefaultImportConfig(), nil)
}
