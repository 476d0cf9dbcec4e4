package jobs

import (
	"time"

	"github.com/mfarzz/webprintrdbi/internal/pdf"
)

// Status は印刷ジョブの状態を表します。
type Status string

const (
	StatusPending  Status = "pending"
	StatusPrinting Status = "printing"
	StatusDone     Status = "done"
	StatusError    Status = "error"
)

// Terminal は終了状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ColorMode はカラー印刷かモノクロ印刷かを表します。
type ColorMode string

const (
	ColorFull ColorMode = "color"
	ColorBW   ColorMode = "bw"
)

// ParseColorMode は "color" 以外をすべてモノクロとして扱います。
func ParseColorMode(raw string) ColorMode {
	if ColorMode(raw) == ColorFull {
		return ColorFull
	}
	return ColorBW
}

// Settings は印刷設定です。
type Settings struct {
	Copies        int               `json:"copies"`
	Color         ColorMode         `json:"color"`
	PaperSize     string            `json:"paperSize"`
	Orientation   string            `json:"orientation"`
	Printer       string            `json:"printer,omitempty"`
	PageRangeText string            `json:"pageRangeText"`
	ResolvedPages pdf.PageSelection `json:"resolvedPages"`
}

// Job はキュー上の印刷ジョブです。
type Job struct {
	ID             string     `json:"id"`
	OriginalName   string     `json:"originalName"`
	StoredFileName string     `json:"storedFileName"`
	StoredFilePath string     `json:"storedFilePath"`
	Status         Status     `json:"status"`
	Settings       Settings   `json:"settings"`
	TotalPages     int        `json:"totalPages,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Files はジョブが所有するファイルのパスです。
func (j *Job) Files() []string {
	if j.StoredFilePath == "" {
		return nil
	}
	return []string{j.StoredFilePath}
}

// Clone はジョブのディープコピーを返します。
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Settings.ResolvedPages.Pages != nil {
		c.Settings.ResolvedPages.Pages = append([]int(nil), j.Settings.ResolvedPages.Pages...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
