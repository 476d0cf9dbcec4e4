package agent

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mfarzz/webprintrdbi/internal/jobs"
)

// FileKind は印刷コマンドの選択に使うファイル種別です。
type FileKind string

const (
	KindPDF   FileKind = "pdf"
	KindImage FileKind = "image"
	KindOther FileKind = "other"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".gif":  true,
}

// KindOf は拡張子からファイル種別を判定します。
func KindOf(path string) FileKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return KindPDF
	case imageExtensions[ext]:
		return KindImage
	default:
		return KindOther
	}
}

// Command は 1 回の印刷呼び出しです。
type Command struct {
	Name string
	Args []string
}

// CommandSet は OS ごとの印刷コマンドを組み立てます。
type CommandSet struct {
	// GOOS が空なら runtime.GOOS を使います。
	GOOS    string
	Sumatra string
}

// For はファイル種別とプリンタ指定に応じた印刷コマンドを返します。
func (s CommandSet) For(kind FileKind, settings jobs.Settings, path string) Command {
	printer := strings.TrimSpace(settings.Printer)
	goos := s.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	if goos != "windows" {
		return lpCommand(printer, settings, path)
	}

	switch kind {
	case KindPDF:
		sumatra := s.Sumatra
		if sumatra == "" {
			sumatra = "SumatraPDF.exe"
		}
		args := []string{"-silent"}
		if printer != "" {
			args = append(args, "-print-to", printer)
		} else {
			args = append(args, "-print-to-default")
		}
		if ps := sumatraPrintSettings(settings); ps != "" {
			args = append(args, "-print-settings", ps)
		}
		return Command{Name: sumatra, Args: append(args, path)}
	case KindImage:
		args := []string{"/pt", path}
		if printer != "" {
			args = append(args, printer)
		}
		return Command{Name: "mspaint.exe", Args: args}
	default:
		// 関連付けられたアプリケーションで既定のプリンタに送ります。
		return Command{Name: "cmd", Args: []string{"/c", "start", "/min", "", "/wait", path, "/print"}}
	}
}

func sumatraPrintSettings(settings jobs.Settings) string {
	var parts []string
	if settings.PaperSize != "" {
		parts = append(parts, "paper="+strings.ToUpper(settings.PaperSize))
	}
	if strings.EqualFold(settings.Orientation, "landscape") {
		parts = append(parts, "landscape")
	}
	return strings.Join(parts, ",")
}

func lpCommand(printer string, settings jobs.Settings, path string) Command {
	var args []string
	if printer != "" {
		args = append(args, "-d", printer)
	}
	if settings.PaperSize != "" {
		args = append(args, "-o", "media="+settings.PaperSize)
	}
	if strings.EqualFold(settings.Orientation, "landscape") {
		args = append(args, "-o", "landscape")
	}
	return Command{Name: "lp", Args: append(args, path)}
}
