package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/capability"
	"github.com/mfarzz/webprintrdbi/internal/jobs"
)

// ErrPrintInvocationFailed は印刷コマンドが失敗したことを表します。
var ErrPrintInvocationFailed = errors.New("print invocation failed")

// ToolResolver は外部ツールを検出します。
type ToolResolver interface {
	Resolve(ctx context.Context) capability.Capability
}

// PrintRequest は 1 ジョブ分の印刷要求です。
type PrintRequest struct {
	JobID    string
	Path     string
	Settings jobs.Settings
}

// Outcome は印刷結果です。
type Outcome struct {
	CopiesPrinted int
	Grayscale     bool
	Err           error
}

// Executor はダウンロード済みファイルを印刷します。
type Executor struct {
	Commands         CommandSet
	Ghostscript      ToolResolver
	ImageMagick      ToolResolver
	Runner           capability.Runner
	GrayscaleTimeout time.Duration
	Logger           *zap.Logger
}

// Execute はモノクロ変換 (ベストエフォート) と部数分の印刷を行います。
// 成否に関わらず、ダウンロード済みファイルと派生ファイルは削除します。
func (e *Executor) Execute(ctx context.Context, req PrintRequest) Outcome {
	logger := e.logger().With(zap.String("job_id", req.JobID))
	kind := KindOf(req.Path)

	temps := []string{req.Path}
	defer func() {
		for _, p := range temps {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove temp file", zap.String("path", p), zap.Error(err))
			}
		}
	}()

	var out Outcome
	target := req.Path
	if req.Settings.Color != jobs.ColorFull {
		gray, err := e.grayscale(ctx, kind, req.Path)
		switch {
		case err != nil:
			logger.Warn("grayscale conversion failed, printing original", zap.Error(err))
		case gray != "":
			temps = append(temps, gray)
			target = gray
			out.Grayscale = true
		}
	}

	copies := req.Settings.Copies
	if copies < 1 {
		copies = 1
	}
	cmd := e.Commands.For(kind, req.Settings, target)
	for i := 0; i < copies; i++ {
		if err := e.runner().Run(ctx, cmd.Name, cmd.Args...); err != nil {
			logger.Error("print invocation failed",
				zap.String("command", cmd.Name),
				zap.Int("copy", i+1),
				zap.Int("copies", copies),
				zap.Error(err))
			out.Err = fmt.Errorf("%w: copy %d/%d: %v", ErrPrintInvocationFailed, i+1, copies, err)
			return out
		}
		out.CopiesPrinted++
	}
	logger.Info("job printed",
		zap.Int("copies", out.CopiesPrinted),
		zap.Bool("grayscale", out.Grayscale),
		zap.String("printer", req.Settings.Printer))
	return out
}

// grayscale はモノクロ版を作成してそのパスを返します。対象外の種別では空文字を返します。
func (e *Executor) grayscale(ctx context.Context, kind FileKind, path string) (string, error) {
	var resolver ToolResolver
	switch kind {
	case KindPDF:
		resolver = e.Ghostscript
	case KindImage:
		resolver = e.ImageMagick
	default:
		return "", nil
	}
	if resolver == nil {
		return "", errors.New("no grayscale converter configured")
	}

	tool := resolver.Resolve(ctx)
	if !tool.Found {
		return "", fmt.Errorf("%s not found", tool.Name)
	}

	if e.GrayscaleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.GrayscaleTimeout)
		defer cancel()
	}

	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + "-gray" + ext

	var args []string
	if kind == KindPDF {
		args = []string{
			"-dSAFER", "-dBATCH", "-dNOPAUSE",
			"-sDEVICE=pdfwrite",
			"-sProcessColorModel=DeviceGray",
			"-sColorConversionStrategy=Gray",
			"-dOverrideICC",
			"-o", out, path,
		}
	} else {
		args = []string{path, "-colorspace", "Gray", out}
	}

	if err := e.runner().Run(ctx, tool.Path, args...); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("%s produced no output: %w", tool.Name, err)
	}
	return out, nil
}

func (e *Executor) runner() capability.Runner {
	if e.Runner == nil {
		return capability.ExecRunner{}
	}
	return e.Runner
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
