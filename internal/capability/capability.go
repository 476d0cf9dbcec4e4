// Package capability は外部ツール (Ghostscript / ImageMagick / LibreOffice) の検出と実行を扱います。
package capability

import (
	"context"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// Capability は外部ツールの検出結果です。
type Capability struct {
	Name  string
	Path  string
	Found bool
}

// Prober はコマンドが実際に起動できるかを確認します。
type Prober interface {
	Probe(ctx context.Context, path string, args []string) error
}

// ProberFunc は関数を Prober として扱うためのアダプタです。
type ProberFunc func(ctx context.Context, path string, args []string) error

func (f ProberFunc) Probe(ctx context.Context, path string, args []string) error {
	return f(ctx, path, args)
}

// ExecProber はバージョン表示コマンドを実行して起動可否を確認します。
type ExecProber struct {
	Timeout time.Duration
}

func (p ExecProber) Probe(ctx context.Context, path string, args []string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}

// Resolver は明示指定・環境変数・候補コマンドの順にツールを探します。
// 結果はキャッシュしないため、呼び出しごとに再検出されます。
type Resolver struct {
	Name string
	// Override は設定ファイルなどで明示されたパスです。
	Override    string
	EnvVar      string
	Candidates  []string
	VersionArgs []string

	Prober   Prober
	LookPath func(file string) (string, error)
	Getenv   func(key string) string
	Stat     func(name string) (os.FileInfo, error)
}

// Resolve はツールを検出します。見つからなければ Found=false を返します。
func (r Resolver) Resolve(ctx context.Context) Capability {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	stat := r.Stat
	if stat == nil {
		stat = os.Stat
	}
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	prober := r.Prober
	if prober == nil {
		prober = ExecProber{}
	}

	explicit := []string{r.Override}
	if r.EnvVar != "" {
		explicit = append(explicit, getenv(r.EnvVar))
	}
	for _, path := range explicit {
		if path == "" {
			continue
		}
		if info, err := stat(path); err == nil && !info.IsDir() {
			return Capability{Name: r.Name, Path: path, Found: true}
		}
	}

	for _, candidate := range r.Candidates {
		if ctx.Err() != nil {
			break
		}
		path, err := lookPath(candidate)
		if err != nil {
			continue
		}
		if err := prober.Probe(ctx, path, r.VersionArgs); err != nil {
			continue
		}
		return Capability{Name: r.Name, Path: path, Found: true}
	}
	return Capability{Name: r.Name}
}

// Ghostscript は Ghostscript の Resolver を返します。
func Ghostscript(override string) Resolver {
	candidates := []string{"gs"}
	if runtime.GOOS == "windows" {
		candidates = []string{"gswin64c", "gswin32c", "gs"}
	}
	return Resolver{
		Name:        "ghostscript",
		Override:    override,
		EnvVar:      "GHOSTSCRIPT_CMD",
		Candidates:  candidates,
		VersionArgs: []string{"--version"},
	}
}

// ImageMagick は ImageMagick の Resolver を返します。
func ImageMagick(override string) Resolver {
	return Resolver{
		Name:        "imagemagick",
		Override:    override,
		EnvVar:      "IMAGEMAGICK_CMD",
		Candidates:  []string{"magick", "convert"},
		VersionArgs: []string{"-version"},
	}
}

// LibreOffice はオフィス文書変換に使う LibreOffice の Resolver を返します。
func LibreOffice(override string) Resolver {
	return Resolver{
		Name:        "libreoffice",
		Override:    override,
		EnvVar:      "LIBREOFFICE_CMD",
		Candidates:  []string{"soffice", "libreoffice"},
		VersionArgs: []string{"--version"},
	}
}
