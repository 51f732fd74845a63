package domain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewPage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		content  []int
		pageNo   int
		pageSize int
		total    int64
		want     Page[int]
	}{
		{
			name:     "Empty",
			pageNo:   0,
			pageSize: 3,
			total:    0,
			want:     Page[int]{Content: []int{}, PageSize: 3, Last: true},
		},
		{
			name:     "FirstOfMany",
			content:  []int{1, 2, 3},
			pageNo:   0,
			pageSize: 3,
			total:    7,
			want:     Page[int]{Content: []int{1, 2, 3}, PageSize: 3, TotalElements: 7, TotalPages: 3},
		},
		{
			name:     "LastPartial",
			content:  []int{7},
			pageNo:   2,
			pageSize: 3,
			total:    7,
			want: Page[int]{
				Content: []int{7}, PageNo: 2, PageSize: 3, TotalElements: 7, TotalPages: 3, Last: true,
			},
		},
		{
			name:     "ExactMultiple",
			content:  []int{4, 5, 6},
			pageNo:   1,
			pageSize: 3,
			total:    6,
			want: Page[int]{
				Content: []int{4, 5, 6}, PageNo: 1, PageSize: 3, TotalElements: 6, TotalPages: 2, Last: true,
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NewPage(tc.content, tc.pageNo, tc.pageSize, tc.total)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("NewPage() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPageWindow(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		pageNo     int
		pageSize   int
		wantLimit  int32
		wantOffset int32
		wantOK     bool
	}{
		{name: "FirstPage", pageNo: 0, pageSize: 10, wantLimit: 10, wantOffset: 0, wantOK: true},
		{name: "ThirdPage", pageNo: 2, pageSize: 5, wantLimit: 5, wantOffset: 10, wantOK: true},
		{name: "LastAddressable", pageNo: 1, pageSize: math.MaxInt32 / 2, wantLimit: math.MaxInt32 / 2, wantOffset: math.MaxInt32 / 2, wantOK: true},
		{name: "OffsetOverflowsInt32", pageNo: 21474837, pageSize: 100},
		{name: "HugePageNo", pageNo: math.MaxInt32, pageSize: 2},
		{name: "NegativePageNo", pageNo: -1, pageSize: 10},
		{name: "ZeroPageSize", pageNo: 0, pageSize: 0},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			limit, offset, ok := PageWindow(tc.pageNo, tc.pageSize)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}

			if limit != tc.wantLimit || offset != tc.wantOffset {
				t.Errorf("window = (%d, %d), want (%d, %d)", limit, offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}
