package types

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code int
		want Classification
	}{
		{200, StatusOK},
		{404, StatusNotFound},
		{403, StatusForbidden},
		{0, StatusConnectionError},
		{500, Classification("ERROR(500)")},
		{301, Classification("ERROR(301)")},
	}
	for _, tc := range cases {
		if got := Classify(tc.code); got != tc.want {
			t.Errorf("Classify(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestReportSummary(t *testing.T) {
	report := &Report{Rows: []ResultRow{
		{StatusCode: 200, Classification: StatusOK},
		{StatusCode: 200, Classification: StatusOK},
		{StatusCode: 200, Classification: StatusNotFound}, // soft 404
		{StatusCode: 404, Classification: StatusNotFound},
	}}

	s := report.Summary()
	if s.TotalImages != 4 || s.Working != 2 || s.Broken != 2 {
		t.Fatalf("summary = %+v", s)
	}
	if s.SuccessRate != 50 {
		t.Fatalf("success rate = %g, want 50", s.SuccessRate)
	}
}

func TestReportSummaryEmpty(t *testing.T) {
	s := (&Report{}).Summary()
	if s.TotalImages != 0 || s.SuccessRate != 0 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestResultRowStrings(t *testing.T) {
	row := ResultRow{
		PageURL:        "https://example.com",
		ImageURL:       "https://example.com/a.png",
		StatusCode:     404,
		Classification: StatusNotFound,
		CheckedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	got := row.Strings()
	want := []string{"https://example.com", "https://example.com/a.png", "404", "NOT_FOUND", "2026-01-02 03:04:05"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProgressFuncNilSafe(t *testing.T) {
	var f ProgressFunc
	f.Report(PhaseChecking, "should not panic", 0.5) // nil receiver is valid
}
