package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/convert"
	"github.com/mfarzz/webprintrdbi/internal/jobs"
	"github.com/mfarzz/webprintrdbi/internal/pdf"
)

// multipart のヘッダー分として本体上限に加える余裕です。
const multipartOverhead = 1 << 20

type uploadForm struct {
	Copies      string `form:"copies"`
	Color       string `form:"color"`
	PaperSize   string `form:"paperSize"`
	Orientation string `form:"orientation"`
	Printer     string `form:"printer"`
	Pages       string `form:"pages"`
	NumPages    string `form:"numPages"`
}

func (f uploadForm) settings() jobs.Settings {
	copies, err := strconv.Atoi(strings.TrimSpace(f.Copies))
	if err != nil || copies < 1 {
		copies = 1
	}
	paper := strings.TrimSpace(f.PaperSize)
	if paper == "" {
		paper = "A4"
	}
	orientation := strings.TrimSpace(f.Orientation)
	if orientation == "" {
		orientation = "portrait"
	}
	return jobs.Settings{
		Copies:        copies,
		Color:         jobs.ParseColorMode(strings.ToLower(strings.TrimSpace(f.Color))),
		PaperSize:     paper,
		Orientation:   orientation,
		Printer:       strings.TrimSpace(f.Printer),
		PageRangeText: strings.TrimSpace(f.Pages),
	}
}

// numPages はクライアント申告の総ページ数です。不明なら 0 です。
func (f uploadForm) numPages() int {
	n, err := strconv.Atoi(strings.TrimSpace(f.NumPages))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// UploadHandler は POST /api/upload のハンドラーを返します。
func UploadHandler(d Deps) gin.HandlerFunc {
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
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondTooLarge(c, d.MaxFileSize)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "印刷するファイルを選択してください。",
			})
			return
		}
		if d.MaxFileSize > 0 && fileHeader.Size > d.MaxFileSize {
			respondTooLarge(c, d.MaxFileSize)
			return
		}

		var form uploadForm
		if err := c.ShouldBind(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "印刷設定を読み取れませんでした。",
			})
			return
		}
		settings := form.settings()
		totalPages := form.numPages()

		// 総ページ数が申告されたときだけ範囲を検証します。
		if settings.PageRangeText != "" && totalPages > 0 {
			if err := pdf.ValidatePageRange(settings.PageRangeText, totalPages); err != nil {
				respondWithError(c, err)
				return
			}
		}

		stored, err := d.Uploads.SaveMultipart(fileHeader)
		if err != nil {
			d.Logger.Error("failed to store upload", zap.String("file", fileHeader.Filename), zap.Error(err))
			respondWithError(c, err)
			return
		}

		path := stored.Path
		kind := convert.DetectKind(path)
		if kind != convert.KindPDF {
			res := d.Normalizer.Normalize(c.Request.Context(), path, kind)
			path = res.OutputPath
			switch {
			case res.Converted:
				d.Metrics.RecordConversion(string(kind), "converted")
				kind = convert.KindPDF
			case res.Err != nil:
				d.Metrics.RecordConversion(string(kind), "failed")
				d.Logger.Warn("normalization failed, keeping original upload",
					zap.String("file", fileHeader.Filename), zap.String("kind", string(kind)), zap.Error(res.Err))
			default:
				d.Metrics.RecordConversion(string(kind), "skipped")
			}
		}

		resolveTotal := totalPages
		if resolveTotal == 0 && settings.PageRangeText != "" && kind == convert.KindPDF {
			if n, err := pdf.CountPages(path); err == nil {
				resolveTotal = n
			} else {
				d.Logger.Warn("could not count pages", zap.String("file", fileHeader.Filename), zap.Error(err))
			}
		}
		settings.ResolvedPages = pdf.ResolvePageRange(settings.PageRangeText, resolveTotal)

		job := &jobs.Job{
			ID:             uuid.NewString(),
			OriginalName:   fileHeader.Filename,
			StoredFileName: filepath.Base(path),
			StoredFilePath: path,
			Settings:       settings,
			TotalPages:     resolveTotal,
			CreatedAt:      time.Now().UTC(),
		}
		if err := d.Jobs.Submit(c.Request.Context(), job); err != nil {
			_ = d.Uploads.Remove(path)
			d.Logger.Error("failed to enqueue job", zap.String("file", fileHeader.Filename), zap.Error(err))
			respondWithError(c, err)
			return
		}

		d.Logger.Info("job enqueued",
			zap.String("job_id", job.ID),
			zap.String("file", job.OriginalName),
			zap.Int("copies", settings.Copies),
			zap.String("color", string(settings.Color)),
			zap.Stringer("pages", settings.ResolvedPages),
		)
		c.JSON(http.StatusOK, gin.H{
			"message": "ファイルを印刷キューに追加しました。",
			"job":     job,
		})
	}
}

func respondTooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"code":    "LIMIT_EXCEEDED",
		"message": "ファイルサイズが上限 (" + strconv.FormatInt(limit/(1<<20), 10) + "MB) を超えています。",
	})
}
