package pdf

import (
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

func init() {
	// pdfcpu がユーザー設定ディレクトリを作らないようにします。
	pdfapi.DisableConfigDir()
}

// CountPages はPDFファイルのページ数を返します。
func CountPages(path string) (int, error) {
	count, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, newError(CodeUnsupportedPDF, "PDFのページ数を取得できませんでした。", err)
	}
	return count, nil
}
