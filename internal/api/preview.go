package api

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/convert"
)

// PreviewHandler は POST /api/preview のハンドラーを返します。
// オフィス文書はPDFに変換し、プレビュー用URLを返します。
func PreviewHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		if d.MaxFileSize > 0 {
			if c.Request.ContentLength > d.MaxFileSize+multipartOverhead {
				respondTooLarge(c, d.MaxFileSize)
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, d.MaxFileSize+multipartOverhead)
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "プレビューするファイルを選択してください。",
			})
			return
		}
		if d.MaxFileSize > 0 && fileHeader.Size > d.MaxFileSize {
			respondTooLarge(c, d.MaxFileSize)
			return
		}

		stored, err := d.Previews.SaveMultipart(fileHeader)
		if err != nil {
			d.Logger.Error("failed to store preview", zap.String("file", fileHeader.Filename), zap.Error(err))
			respondWithError(c, err)
			return
		}

		out := stored.Path
		converted := false
		kind := convert.DetectKind(stored.Path)
		switch kind {
		case convert.KindPDF, convert.KindImage:
		case convert.KindOffice:
			res := d.Normalizer.Normalize(c.Request.Context(), stored.Path, kind)
			if !res.Converted {
				_ = d.Previews.Remove(stored.Path, res.OutputPath)
				d.Metrics.RecordConversion(string(kind), "failed")
				conversionError := "conversion produced no output"
				if res.Err != nil {
					conversionError = res.Err.Error()
				}
				d.Logger.Warn("preview conversion failed", zap.String("file", fileHeader.Filename), zap.String("error", conversionError))
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"code":            "CONVERSION_FAILED",
					"message":         "プレビュー用のPDF変換に失敗しました。",
					"conversionError": conversionError,
				})
				return
			}
			d.Metrics.RecordConversion(string(kind), "converted")
			out = res.OutputPath
			converted = true
		default:
			_ = d.Previews.Remove(stored.Path)
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"code":    "UNSUPPORTED_FILE",
				"message": "このファイル形式はプレビューできません。",
			})
			return
		}

		d.Previews.RemoveAfter(out, d.PreviewTTL)
		c.JSON(http.StatusOK, gin.H{
			"previewUrl": path.Join(d.PreviewURLPrefix, filepath.Base(out)),
			"kind":       kind,
			"converted":  converted,
		})
	}
}

type previewCleanupRequest struct {
	Name       string `json:"name" form:"name"`
	PreviewURL string `json:"previewUrl" form:"previewUrl"`
}

// PreviewCleanupHandler は POST /api/preview/cleanup のハンドラーを返します。
func PreviewCleanupHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		var req previewCleanupRequest
		_ = c.ShouldBind(&req)

		name := strings.TrimSpace(req.Name)
		if name == "" && req.PreviewURL != "" {
			name = path.Base(strings.TrimSpace(req.PreviewURL))
		}
		target, err := d.Previews.Resolve(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "削除するプレビューファイル名が正しくありません。",
			})
			return
		}

		existed := d.Previews.Exists(target)
		if err := d.Previews.Remove(target); err != nil {
			d.Logger.Warn("failed to remove preview", zap.String("name", name), zap.Error(err))
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "removed": existed})
	}
}
