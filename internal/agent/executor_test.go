package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfarzz/webprintrdbi/internal/capability"
	"github.com/mfarzz/webprintrdbi/internal/jobs"
)

type staticTool capability.Capability

func (s staticTool) Resolve(context.Context) capability.Capability { return capability.Capability(s) }

type call struct {
	name string
	args []string
}

// recordingRunner は呼び出しを記録します。fail が返す値でエラーを注入できます。
type recordingRunner struct {
	mu    sync.Mutex
	calls []call
	fail  func(n int, name string, args []string) error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, call{name: name, args: args})
	n := len(r.calls)
	r.mu.Unlock()
	if r.fail != nil {
		return r.fail(n, name, args)
	}
	return nil
}

func (r *recordingRunner) named(name string) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func writeTemp(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	return path
}

func TestExecutePrintsEachCopyAndCleansUp(t *testing.T) {
	path := writeTemp(t, "job.pdf")
	runner := &recordingRunner{}
	e := &Executor{Commands: CommandSet{GOOS: "linux"}, Runner: runner}

	out := e.Execute(context.Background(), PrintRequest{
		JobID:    "job",
		Path:     path,
		Settings: jobs.Settings{Copies: 3, Color: jobs.ColorFull},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.CopiesPrinted)
	assert.False(t, out.Grayscale)
	assert.Len(t, runner.named("lp"), 3)
	assert.NoFileExists(t, path)
}

func TestExecuteGrayscalePDF(t *testing.T) {
	path := writeTemp(t, "job.pdf")
	gray := filepath.Join(filepath.Dir(path), "job-gray.pdf")
	runner := &recordingRunner{fail: func(_ int, name string, args []string) error {
		if name == "/opt/gs" {
			return os.WriteFile(args[len(args)-2], []byte("gray"), 0o644)
		}
		return nil
	}}
	e := &Executor{
		Commands:    CommandSet{GOOS: "linux"},
		Ghostscript: staticTool{Name: "ghostscript", Path: "/opt/gs", Found: true},
		Runner:      runner,
	}

	out := e.Execute(context.Background(), PrintRequest{
		JobID:    "job",
		Path:     path,
		Settings: jobs.Settings{Copies: 1, Color: jobs.ColorBW},
	})

	require.NoError(t, out.Err)
	assert.True(t, out.Grayscale)
	gs := runner.named("/opt/gs")
	require.Len(t, gs, 1)
	assert.Contains(t, gs[0].args, "-sColorConversionStrategy=Gray")
	assert.Equal(t, []string{"-o", gray, path}, gs[0].args[len(gs[0].args)-3:])

	lp := runner.named("lp")
	require.Len(t, lp, 1)
	assert.Equal(t, gray, lp[0].args[len(lp[0].args)-1])
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, gray)
}

func TestExecuteGrayscaleFallsBackToOriginal(t *testing.T) {
	t.Run("tool missing", func(t *testing.T) {
		path := writeTemp(t, "photo.png")
		runner := &recordingRunner{}
		e := &Executor{
			Commands:    CommandSet{GOOS: "linux"},
			ImageMagick: staticTool{Name: "imagemagick"},
			Runner:      runner,
		}

		out := e.Execute(context.Background(), PrintRequest{JobID: "j", Path: path, Settings: jobs.Settings{Copies: 1, Color: jobs.ColorBW}})

		require.NoError(t, out.Err)
		assert.False(t, out.Grayscale)
		lp := runner.named("lp")
		require.Len(t, lp, 1)
		assert.Equal(t, path, lp[0].args[len(lp[0].args)-1])
	})

	t.Run("tool fails", func(t *testing.T) {
		path := writeTemp(t, "photo.png")
		runner := &recordingRunner{fail: func(_ int, name string, _ []string) error {
			if name == "/opt/magick" {
				return errors.New("boom")
			}
			return nil
		}}
		e := &Executor{
			Commands:    CommandSet{GOOS: "linux"},
			ImageMagick: staticTool{Name: "imagemagick", Path: "/opt/magick", Found: true},
			Runner:      runner,
		}

		out := e.Execute(context.Background(), PrintRequest{JobID: "j", Path: path, Settings: jobs.Settings{Copies: 2, Color: jobs.ColorBW}})

		require.NoError(t, out.Err)
		assert.False(t, out.Grayscale)
		assert.Equal(t, 2, out.CopiesPrinted)
		assert.Equal(t, []string{path, "-colorspace", "Gray", filepath.Join(filepath.Dir(path), "photo-gray.png")}, runner.named("/opt/magick")[0].args)
	})
}

func TestExecuteAbortsRemainingCopiesOnFailure(t *testing.T) {
	path := writeTemp(t, "job.pdf")
	runner := &recordingRunner{fail: func(n int, _ string, _ []string) error {
		if n == 2 {
			return errors.New("printer offline")
		}
		return nil
	}}
	e := &Executor{Commands: CommandSet{GOOS: "linux"}, Runner: runner}

	out := e.Execute(context.Background(), PrintRequest{JobID: "j", Path: path, Settings: jobs.Settings{Copies: 5, Color: jobs.ColorFull}})

	require.ErrorIs(t, out.Err, ErrPrintInvocationFailed)
	assert.Equal(t, 1, out.CopiesPrinted)
	assert.Len(t, runner.calls, 2)
	assert.NoFileExists(t, path)
}

func TestExecuteTreatsZeroCopiesAsOne(t *testing.T) {
	path := writeTemp(t, "job.docx")
	runner := &recordingRunner{}
	e := &Executor{Commands: CommandSet{GOOS: "linux"}, Runner: runner}

	out := e.Execute(context.Background(), PrintRequest{JobID: "j", Path: path, Settings: jobs.Settings{Color: jobs.ColorBW}})

	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.CopiesPrinted)
	assert.False(t, out.Grayscale)
}
