package pdf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// maxUnboundedPage は総ページ数が不明なときに範囲を展開する上限です。
const maxUnboundedPage = 10000

var pageRangePattern = regexp.MustCompile(`^\s*\d+(\s*-\s*\d+)?(\s*,\s*\d+(\s*-\s*\d+)?)*\s*$`)

// PageSelection は印刷対象ページです。Pages が空なら全ページを表します。
// JSON では "all" または昇順のページ番号配列になります。
type PageSelection struct {
	Pages []int
}

// AllPages は全ページ選択を返します。
func AllPages() PageSelection {
	return PageSelection{}
}

// All は全ページ選択かどうかを返します。
func (s PageSelection) All() bool {
	return len(s.Pages) == 0
}

func (s PageSelection) String() string {
	if s.All() {
		return "all"
	}
	parts := make([]string, len(s.Pages))
	for i, p := range s.Pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func (s PageSelection) MarshalJSON() ([]byte, error) {
	if s.All() {
		return []byte(`"all"`), nil
	}
	return json.Marshal(s.Pages)
}

func (s *PageSelection) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte(`"all"`)) || bytes.Equal(trimmed, []byte("null")) {
		s.Pages = nil
		return nil
	}
	var pages []int
	if err := json.Unmarshal(trimmed, &pages); err != nil {
		return fmt.Errorf("page selection: %w", err)
	}
	s.Pages = pages
	return nil
}

// ValidatePageRange はアップロード時のページ範囲を検証します。
// 空文字は全ページとして常に有効です。total が 0 以下なら上限チェックを行いません。
func ValidatePageRange(expr string, total int) error {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil
	}
	if !pageRangePattern.MatchString(trimmed) {
		return newError(CodeInvalidRangeSyntax, "ページ範囲の形式が正しくありません。例: 1,3-5", ErrInvalidRangeSyntax)
	}

	for _, seg := range strings.Split(trimmed, ",") {
		seg = strings.TrimSpace(seg)
		start, end, err := parseSegment(seg)
		if errors.Is(err, strconv.ErrRange) {
			return newError(CodeOutOfRange, fmt.Sprintf("ページ範囲 %s のページ番号が大きすぎます。", seg), ErrOutOfRange)
		}
		if err != nil {
			return newError(CodeInvalidRangeSyntax, fmt.Sprintf("ページ範囲 %s を解釈できません。", seg), ErrInvalidRangeSyntax)
		}
		if start > end {
			return newError(CodeInvalidRangeSyntax, fmt.Sprintf("範囲 %s は開始ページが終了ページより大きくなっています。", seg), ErrInvalidRangeSyntax)
		}
		if start < 1 {
			return newError(CodeOutOfRange, "ページ番号は 1 以上で指定してください。", ErrOutOfRange)
		}
		if total > 0 && end > total {
			return newError(CodeOutOfRange, fmt.Sprintf("ページ %d は総ページ数 %d を超えています。", end, total), ErrOutOfRange)
		}
	}
	return nil
}

// ResolvePageRange はページ範囲を重複なし昇順のページ番号に展開します。
// 解釈できない区切りは無視し、[1, total] 外のページは捨てます。
// total が 0 以下の場合は maxUnboundedPage を上限とします。
func ResolvePageRange(expr string, total int) PageSelection {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return AllPages()
	}
	limit := total
	if limit <= 0 {
		limit = maxUnboundedPage
	}

	seen := make(map[int]struct{})
	for _, seg := range strings.Split(trimmed, ",") {
		start, end, err := parseSegment(strings.TrimSpace(seg))
		if (err != nil && !errors.Is(err, strconv.ErrRange)) || start > end {
			continue
		}
		if start < 1 {
			start = 1
		}
		if end > limit {
			end = limit
		}
		for p := start; p <= end; p++ {
			seen[p] = struct{}{}
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return PageSelection{Pages: pages}
}

// parseSegment は "A" または "A-B" を解釈します。
// int に収まらない数値は math.MaxInt に丸め、strconv.ErrRange を含むエラーと一緒に返します。
func parseSegment(seg string) (int, int, error) {
	if seg == "" {
		return 0, 0, fmt.Errorf("empty segment")
	}
	first, second, isRange := strings.Cut(seg, "-")
	start, startErr := parsePage(first)
	if startErr != nil && !errors.Is(startErr, strconv.ErrRange) {
		return 0, 0, startErr
	}
	if !isRange {
		return start, start, startErr
	}
	end, endErr := parsePage(second)
	if endErr != nil && !errors.Is(endErr, strconv.ErrRange) {
		return 0, 0, endErr
	}
	return start, end, errors.Join(startErr, endErr)
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt, err
	}
	return n, err
}

// inBounds は pages を昇順・重複なしにし、[1, count] の範囲に絞ります。
func inBounds(pages []int, count int) []int {
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > count {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
