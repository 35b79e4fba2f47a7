package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bollette/internal/core"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{" 2024-01-15 ", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"2024-01-15T10:30:00+02:00", time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC), false},
		{"2024-02-30", time.Time{}, true},
		{"", time.Time{}, true},
		{"tomorrow", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimestamp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTimestamp(%q) error = %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseOffset(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		offset, err := parseOffset(url.Values{})
		if err != nil || offset != nil {
			t.Fatalf("parseOffset() = %v, %v; want nil, nil", offset, err)
		}
	})

	t.Run("start only", func(t *testing.T) {
		offset, err := parseOffset(url.Values{"start": {"2024-03-01"}})
		if err != nil {
			t.Fatal(err)
		}
		if offset.Start == nil || offset.End != nil || offset.Start.Format(core.DateLayout) != "2024-03-01" {
			t.Errorf("offset = %+v", offset)
		}
	})

	t.Run("both invalid", func(t *testing.T) {
		_, err := parseOffset(url.Values{"start": {"x"}, "end": {"2024-02-31"}})
		var verr *core.ValidationError
		if !errors.As(err, &verr) || len(verr.Fields) != 2 {
			t.Fatalf("error = %v, want two field errors", err)
		}
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := parseOffset(url.Values{"start": {"2024-03-01"}, "end": {"2024-02-01"}})
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("error = %v, want validation error", err)
		}
	})
}

func TestParseDueSoonDays(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"7", 7, false},
		{"0", core.MinDueSoonDays, false},
		{"-3", core.MinDueSoonDays, false},
		{"90", 90, false},
		{"a week", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDueSoonDays(url.Values{"due_soon_days": {tt.value}})
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseDueSoonDays(%q) = %d, %v; want %d, err %v", tt.value, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParsePageParams(t *testing.T) {
	p := parsePageParams(url.Values{
		"page": {"3"}, "page_size": {"500"}, "sort": {"amount"}, "order": {"DESC"}, "q": {"  rent "},
	})
	want := core.PageParams{Page: 3, PageSize: core.MaxPageSize, Sort: core.SortAmount, Order: "desc", Query: "rent"}
	if p != want {
		t.Errorf("parsePageParams() = %+v, want %+v", p, want)
	}

	p = parsePageParams(url.Values{"page": {"9223372036854775807"}})
	if p.Page != core.MaxPage {
		t.Errorf("huge page = %d, want %d", p.Page, core.MaxPage)
	}

	p = parsePageParams(url.Values{"page": {"x"}, "sort": {"colour"}})
	if p.Page != 1 || p.PageSize != core.DefaultPageSize || p.Sort != core.SortName || p.Order != "asc" {
		t.Errorf("defaults = %+v", p)
	}
}

func TestParseDateRange(t *testing.T) {
	from, to, err := parseDateRange(url.Values{"from": {"2024-01-01"}})
	if err != nil || from.String() != "2024-01-01" || !to.IsZero() {
		t.Fatalf("parseDateRange() = %v, %v, %v", from, to, err)
	}
	if _, _, err := parseDateRange(url.Values{"to": {"01/02/2024"}}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestBillRequestToInput(t *testing.T) {
	until := "2024-12-31"
	in, err := billRequest{
		Name:    " Rent\x00 ",
		DTStart: "2024-01-01",
		Until:   &until,
	}.toInput()
	if err != nil {
		t.Fatalf("toInput() error = %v", err)
	}
	if in.Name != "Rent" || in.Until == nil || in.Until.Day() != 31 {
		t.Errorf("toInput() = %+v", in)
	}

	bad := "never"
	_, err = billRequest{DTStart: "", Until: &bad}.toInput()
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Fields["dtstart"] == "" || verr.Fields["until"] == "" {
		t.Errorf("error = %v, want dtstart and until field errors", err)
	}
}

func TestPatchRequestToPatch(t *testing.T) {
	start := "2024-05-01T00:00:00Z"
	p, err := patchRequest{DTStart: &start, ClearUntil: true}.toPatch()
	if err != nil {
		t.Fatal(err)
	}
	if p.DTStart == nil || p.DTStart.Month() != time.May || !p.ClearUntil || p.Name != nil {
		t.Errorf("toPatch() = %+v", p)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"Food"}`, false},
		{"unknown field", `{"name":"Food","x":1}`, true},
		{"trailing data", `{"name":"Food"}{"name":"Other"}`, true},
		{"empty", ``, true},
		{"too large", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v categoryRequest
			err := decodeJSON(httptest.NewRecorder(), r, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errBadBody) {
				t.Errorf("error = %v, want errBadBody", err)
			}
		})
	}
}
