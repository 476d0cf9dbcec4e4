package capability

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner は外部コマンドを実行します。
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// RunnerFunc は関数を Runner として扱うためのアダプタです。
type RunnerFunc func(ctx context.Context, name string, args ...string) error

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}

// ExecRunner は os/exec でコマンドを実行し、失敗時は出力をエラーに含めます。
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", filepath.Base(name), ctx.Err())
		}
		msg := strings.TrimSpace(output.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
	}
	return nil
}
