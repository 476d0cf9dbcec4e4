package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mfarzz/webprintrdbi/internal/jobs"
	"github.com/mfarzz/webprintrdbi/internal/pdf"
)

// respondWithError はエラー種別に応じたステータスで {code, message} を返します。
func respondWithError(c *gin.Context, err error) {
	var pdfErr *pdf.Error
	switch {
	case errors.As(err, &pdfErr):
		status := http.StatusBadRequest
		if pdfErr.Code == pdf.CodeUnsupportedPDF {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"code":    pdfErr.Code,
			"message": pdfErr.Message,
		})
	case errors.Is(err, jobs.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "指定されたジョブは存在しません。",
		})
	case errors.Is(err, jobs.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "JOB_ALREADY_CLAIMED",
			"message": "このジョブは既に処理中です。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func respondFileGone(c *gin.Context) {
	c.JSON(http.StatusGone, gin.H{
		"code":    "FILE_GONE",
		"message": "印刷ファイルは既に削除されています。",
	})
}
