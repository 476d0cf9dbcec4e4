package pdf

import (
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"testing"
)

func TestValidatePageRange(t *testing.T) {
	cases := []struct {
		name  string
		expr  string
		total int
		code  string
	}{
		{name: "empty is all pages", expr: "", total: 10},
		{name: "whitespace only", expr: "   ", total: 10},
		{name: "single page", expr: "3", total: 10},
		{name: "mixed list with spaces", expr: " 2 , 4 - 6 ", total: 10},
		{name: "last page", expr: "10", total: 10},
		{name: "unknown total skips upper bound", expr: "1,500", total: 0},
		{name: "letters", expr: "1,a", total: 10, code: CodeInvalidRangeSyntax},
		{name: "open ended range", expr: "3-", total: 10, code: CodeInvalidRangeSyntax},
		{name: "trailing comma", expr: "1,2,", total: 10, code: CodeInvalidRangeSyntax},
		{name: "descending range", expr: "5-3", total: 10, code: CodeInvalidRangeSyntax},
		{name: "page zero", expr: "0", total: 10, code: CodeOutOfRange},
		{name: "beyond total", expr: "1,50", total: 10, code: CodeOutOfRange},
		{name: "range end beyond total", expr: "8-11", total: 10, code: CodeOutOfRange},
		{name: "page number overflows int", expr: "1,99999999999999999999", total: 10, code: CodeOutOfRange},
		{name: "overflow with unknown total", expr: "2-99999999999999999999", total: 0, code: CodeOutOfRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePageRange(tc.expr, tc.total)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("ValidatePageRange(%q, %d) returned error: %v", tc.expr, tc.total, err)
				}
				return
			}
			var pdfErr *Error
			if !errors.As(err, &pdfErr) {
				t.Fatalf("ValidatePageRange(%q, %d) = %v, want *Error", tc.expr, tc.total, err)
			}
			if pdfErr.Code != tc.code {
				t.Fatalf("code = %s, want %s", pdfErr.Code, tc.code)
			}
		})
	}
}

func TestValidatePageRangeSentinels(t *testing.T) {
	if err := ValidatePageRange("x", 5); !errors.Is(err, ErrInvalidRangeSyntax) {
		t.Fatalf("expected ErrInvalidRangeSyntax, got %v", err)
	}
	if err := ValidatePageRange("6", 5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestResolvePageRange(t *testing.T) {
	cases := []struct {
		expr  string
		total int
		want  []int
	}{
		{expr: "2,4-6", total: 10, want: []int{2, 4, 5, 6}},
		{expr: "5,1,3,1", total: 10, want: []int{1, 3, 5}},
		{expr: "3-5,4-7", total: 10, want: []int{3, 4, 5, 6, 7}},
		{expr: "1,50", total: 10, want: []int{1}},
		{expr: "8-12", total: 10, want: []int{8, 9, 10}},
		{expr: "abc,2,x-y,7-5", total: 10, want: []int{2}},
		{expr: "0,1", total: 3, want: []int{1}},
		{expr: "9998-10003", total: 0, want: []int{9998, 9999, 10000}},
		{expr: "abc", total: 10, want: []int{}},
		{expr: "8-99999999999999999999", total: 10, want: []int{8, 9, 10}},
		{expr: "1,99999999999999999999", total: 10, want: []int{1}},
	}

	for _, tc := range cases {
		got := ResolvePageRange(tc.expr, tc.total)
		if !reflect.DeepEqual(got.Pages, tc.want) {
			t.Fatalf("ResolvePageRange(%q, %d) = %v, want %v", tc.expr, tc.total, got.Pages, tc.want)
		}
	}
}

func TestResolvePageRangeEmptyIsAll(t *testing.T) {
	if got := ResolvePageRange("  ", 10); !got.All() {
		t.Fatalf("expected all pages, got %v", got.Pages)
	}
}

func TestResolvedPagesAreSortedUniqueAndInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		total := rng.Intn(30) + 1
		segs := make([]string, rng.Intn(5)+1)
		for j := range segs {
			a := rng.Intn(40)
			if rng.Intn(2) == 0 {
				segs[j] = strconv.Itoa(a)
				continue
			}
			segs[j] = strconv.Itoa(a) + "-" + strconv.Itoa(a+rng.Intn(10))
		}
		expr := strings.Join(segs, ",")

		pages := ResolvePageRange(expr, total).Pages
		if !sort.IntsAreSorted(pages) {
			t.Fatalf("%q: pages not sorted: %v", expr, pages)
		}
		for k, p := range pages {
			if p < 1 || p > total {
				t.Fatalf("%q: page %d outside [1,%d]", expr, p, total)
			}
			if k > 0 && pages[k-1] == p {
				t.Fatalf("%q: duplicate page %d", expr, p)
			}
		}
	}
}

func TestPageSelectionJSON(t *testing.T) {
	all, err := json.Marshal(AllPages())
	if err != nil {
		t.Fatalf("marshal all: %v", err)
	}
	if string(all) != `"all"` {
		t.Fatalf("all pages = %s, want \"all\"", all)
	}

	var sel PageSelection
	if err := json.Unmarshal([]byte(`[2,4,5]`), &sel); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if sel.String() != "2,4,5" {
		t.Fatalf("selection = %s", sel)
	}
	if err := json.Unmarshal([]byte(`"all"`), &sel); err != nil || !sel.All() {
		t.Fatalf("expected all pages after unmarshal, got %v (err=%v)", sel.Pages, err)
	}
}
