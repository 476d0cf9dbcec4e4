// Package pdftest はテスト用の最小構成PDFを生成します。
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
)

// PageWidth は Build が生成するページ page (1始まり) の幅です。
func PageWidth(page int) float64 {
	return float64(100 + page)
}

// Build は pages 枚のページを持つPDFを返します。ページごとに幅が異なります。
func Build(pages int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)
	writeObj := func(num int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for p := 1; p <= pages; p++ {
		writeObj(p+2, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 200] /Resources << >> >>", 100+p))
	}

	xref := buf.Len()
	size := pages + 3
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}

// Write は Build の結果を path に書き出します。
func Write(tb testing.TB, path string, pages int) {
	tb.Helper()
	if err := os.WriteFile(path, Build(pages), 0o644); err != nil {
		tb.Fatalf("write test pdf: %v", err)
	}
}
