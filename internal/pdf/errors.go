package pdf

import "errors"

// エラーコード。HTTPレスポンスの code にそのまま載ります。
const (
	CodeInvalidRangeSyntax = "INVALID_RANGE_SYNTAX"
	CodeOutOfRange         = "OUT_OF_RANGE"
	CodeUnsupportedPDF     = "UNSUPPORTED_PDF"
)

var (
	// ErrInvalidRangeSyntax はページ範囲が文法に合わない場合に返ります。
	ErrInvalidRangeSyntax = errors.New("invalid page range syntax")
	// ErrOutOfRange はページ番号が 1 未満または総ページ数を超える場合に返ります。
	ErrOutOfRange = errors.New("page out of range")
)

// Error はクライアントに返すコードとメッセージを持つエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
