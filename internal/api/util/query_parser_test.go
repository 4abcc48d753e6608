package util

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseQueryString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []QueryFilter
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{
			name:  "implicit equality",
			input: "status|success",
			want:  []QueryFilter{{Field: "status", Operator: OpEq, Value: "success"}},
		},
		{
			name:  "null check",
			input: "exit_code|isnull",
			want:  []QueryFilter{{Field: "exit_code", Operator: OpIsNull}},
		},
		{
			name:  "explicit operator, case insensitive",
			input: "started_at|GTE|2025-01-01",
			want:  []QueryFilter{{Field: "started_at", Operator: OpGte, Value: "2025-01-01"}},
		},
		{
			name:  "list operator",
			input: "status|in|success;failed",
			want:  []QueryFilter{{Field: "status", Operator: OpIn, Value: []string{"success", "failed"}}},
		},
		{
			name:  "several conditions with blanks",
			input: " strategy|ssh , ,target_ref|ne|vm-1",
			want: []QueryFilter{
				{Field: "strategy", Operator: OpEq, Value: "ssh"},
				{Field: "target_ref", Operator: OpNe, Value: "vm-1"},
			},
		},
		{name: "unknown operator", input: "status|like|x", wantErr: true},
		{name: "unary with value", input: "exit_code|isnull|1", wantErr: true},
		{name: "missing field", input: "|success", wantErr: true},
		{name: "bare field", input: "status", wantErr: true},
		{name: "too many parts", input: "a|eq|b|c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQueryString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidQuery) {
					t.Fatalf("expected ErrInvalidQuery, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseOrderString(t *testing.T) {
	got, err := ParseOrderString("started_at|DESC, id|asc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []OrderClause{{Field: "started_at", Direction: OrderDesc}, {Field: "id", Direction: OrderAsc}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	for _, bad := range []string{"started_at", "started_at|up", "|asc"} {
		if _, err := ParseOrderString(bad); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("ParseOrderString(%q) error = %v, want ErrInvalidQuery", bad, err)
		}
	}
}

func TestParseListFilter(t *testing.T) {
	fields := []string{"status", "started_at"}

	tests := []struct {
		name        string
		query       string
		order       string
		page        int
		perPage     int
		wantPage    int
		wantPerPage int
		wantErr     bool
	}{
		{name: "defaults", wantPage: 1, wantPerPage: DefaultPerPage},
		{name: "explicit paging", page: 3, perPage: 10, wantPage: 3, wantPerPage: 10},
		{name: "clamped page size", page: -2, perPage: 5000, wantPage: 1, wantPerPage: MaxPerPage},
		{name: "allowed fields", query: "status|failed", order: "started_at|desc", wantPage: 1, wantPerPage: DefaultPerPage},
		{name: "disallowed filter field", query: "command|ls", wantErr: true},
		{name: "disallowed order field", order: "command|asc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseListFilter(tt.query, tt.order, tt.page, tt.perPage, fields, fields)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidQuery) {
					t.Fatalf("expected ErrInvalidQuery, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Page != tt.wantPage || f.PerPage != tt.wantPerPage {
				t.Errorf("page = %d/%d, want %d/%d", f.Page, f.PerPage, tt.wantPage, tt.wantPerPage)
			}
		})
	}
}

func TestTotalPages(t *testing.T) {
	f := ListFilter{PerPage: 4}
	for total, want := range map[int]int{0: 0, 1: 1, 4: 1, 5: 2, 8: 2, 9: 3} {
		if got := f.TotalPages(total); got != want {
			t.Errorf("TotalPages(%d) = %d, want %d", total, got, want)
		}
	}
}
