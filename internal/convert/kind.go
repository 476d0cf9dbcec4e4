// Package convert はアップロードされた画像やオフィス文書をPDFに正規化します。
package convert

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind はファイルの大分類です。
type Kind string

const (
	KindPDF    Kind = "pdf"
	KindImage  Kind = "image"
	KindOffice Kind = "office"
	KindOther  Kind = "other"
)

var officeMIMEs = []string{
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.spreadsheet",
	"application/vnd.oasis.opendocument.presentation",
	"text/rtf",
}

var extensionKinds = map[string]Kind{
	".pdf":  KindPDF,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".webp": KindImage,
	".bmp":  KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".doc":  KindOffice,
	".docx": KindOffice,
	".xls":  KindOffice,
	".xlsx": KindOffice,
	".ppt":  KindOffice,
	".pptx": KindOffice,
	".odt":  KindOffice,
	".ods":  KindOffice,
	".odp":  KindOffice,
	".rtf":  KindOffice,
}

// DetectKind は内容のMIMEを優先し、判定できなければ拡張子で分類します。
func DetectKind(path string) Kind {
	if mt, err := mimetype.DetectFile(path); err == nil {
		if kind := kindForMIME(mt); kind != KindOther {
			return kind
		}
	}
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	return KindOther
}

func kindForMIME(mt *mimetype.MIME) Kind {
	switch {
	case mt.Is("application/pdf"):
		return KindPDF
	case strings.HasPrefix(mt.String(), "image/"):
		return KindImage
	}
	for _, m := range officeMIMEs {
		if mt.Is(m) {
			return KindOffice
		}
	}
	return KindOther
}

// ContentType は path の内容から Content-Type を推定します。
func ContentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
