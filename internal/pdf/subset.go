package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractPages は src から pages のページだけを取り出したPDFを w に書き込みます。
// ページは昇順に並べ替え、範囲外のページは捨てます。
// 有効なページが残らなかった場合は何も書き込まず false を返します。
func ExtractPages(ctx context.Context, src io.ReadSeeker, pages []int, w io.Writer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	count, err := pdfapi.PageCount(src, nil)
	if err != nil {
		return false, newError(CodeUnsupportedPDF, "PDFを読み込めませんでした。", err)
	}
	selected := inBounds(pages, count)
	if len(selected) == 0 {
		return false, nil
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("rewind pdf: %w", err)
	}
	if err := pdfapi.Collect(src, w, pageSelection(selected), nil); err != nil {
		return false, newError(CodeUnsupportedPDF, "指定ページの抽出に失敗しました。", err)
	}
	return true, nil
}

// ExtractPagesBytes は path のPDFから pages を抽出した内容をメモリ上に返します。
// 有効なページが残らなかった場合は nil, false を返します。
func ExtractPagesBytes(ctx context.Context, path string, pages []int) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	var buf bytes.Buffer
	ok, err := ExtractPages(ctx, f, pages, &buf)
	if err != nil || !ok {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// ExtractPagesToFile は pages を抽出したPDFを outDir に書き出し、そのパスを返します。
// 有効なページが残らなかった場合やエラー時は元の srcPath を返します。
func ExtractPagesToFile(ctx context.Context, srcPath string, pages []int, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return srcPath, err
	}
	count, err := pdfapi.PageCountFile(srcPath)
	if err != nil {
		return srcPath, newError(CodeUnsupportedPDF, "PDFを読み込めませんでした。", err)
	}
	selected := inBounds(pages, count)
	if len(selected) == 0 {
		return srcPath, nil
	}

	outPath := filepath.Join(outDir, "subset-"+uuid.NewString()+".pdf")
	if err := pdfapi.CollectFile(srcPath, outPath, pageSelection(selected), nil); err != nil {
		_ = os.Remove(outPath)
		return srcPath, newError(CodeUnsupportedPDF, "指定ページの抽出に失敗しました。", err)
	}
	return outPath, nil
}

func pageSelection(pages []int) []string {
	selection := make([]string, len(pages))
	for i, p := range pages {
		selection[i] = strconv.Itoa(p)
	}
	return selection
}
