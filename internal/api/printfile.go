package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/convert"
	"github.com/mfarzz/webprintrdbi/internal/jobs"
	"github.com/mfarzz/webprintrdbi/internal/pdf"
)

// PrintFileHandler は GET /api/print-file/:id のハンドラーを返します。
// ページ指定があるPDFは要求のたびに抽出して返します。
func PrintFileHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		id, ok := jobIDParam(c)
		if !ok {
			return
		}
		job, err := d.Jobs.Get(c.Request.Context(), id)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if job.Status.Terminal() {
			d.Metrics.RecordPrintFile("gone")
			respondFileGone(c)
			return
		}

		path := job.StoredFilePath
		contentType := convert.ContentType(path)

		if !job.Settings.ResolvedPages.All() && strings.HasPrefix(contentType, "application/pdf") {
			data, ok, err := pdf.ExtractPagesBytes(c.Request.Context(), path, job.Settings.ResolvedPages.Pages)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				d.Metrics.RecordPrintFile("gone")
				respondFileGone(c)
				return
			case err != nil:
				d.Logger.Warn("page extraction failed, sending full document", zap.String("job_id", id), zap.Error(err))
			case ok:
				d.Metrics.RecordPrintFile("subset")
				c.Header("Content-Disposition", contentDisposition("subset-"+pdfName(job)))
				c.Header("Cache-Control", "no-store")
				c.Data(http.StatusOK, "application/pdf", data)
				return
			}
		}

		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				d.Metrics.RecordPrintFile("gone")
				respondFileGone(c)
				return
			}
			d.Logger.Error("failed to open print file", zap.String("job_id", id), zap.Error(err))
			respondWithError(c, err)
			return
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			respondWithError(c, err)
			return
		}

		d.Metrics.RecordPrintFile("original")
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
			"Content-Disposition": contentDisposition(downloadName(job)),
			"Cache-Control":       "no-store",
		})
	}
}

func contentDisposition(name string) string {
	return fmt.Sprintf("inline; filename=\"%s\"; filename*=UTF-8''%s", strings.ReplaceAll(name, `"`, ""), url.PathEscape(name))
}

// downloadName は保存ファイルの拡張子に合わせた元ファイル名です。
func downloadName(job *jobs.Job) string {
	ext := filepath.Ext(job.StoredFileName)
	return strings.TrimSuffix(job.OriginalName, filepath.Ext(job.OriginalName)) + ext
}

func pdfName(job *jobs.Job) string {
	return strings.TrimSuffix(job.OriginalName, filepath.Ext(job.OriginalName)) + ".pdf"
}
