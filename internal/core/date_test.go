package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Date
		wantErr bool
	}{
		{
			name:  "valid date",
			input: "2024-03-15",
			want:  NewDate(2024, 3, 15),
		},
		{
			name:  "leap day",
			input: "2024-02-29",
			want:  NewDate(2024, 2, 29),
		},
		{
			name:    "invalid leap day",
			input:   "2023-02-29",
			wantErr: true,
		},
		{
			name:    "wrong layout",
			input:   "15/03/2024",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDateDaysUntil(t *testing.T) {
	tests := []struct {
		name string
		from Date
		to   Date
		want int
	}{
		{"same day", NewDate(2024, 2, 27), NewDate(2024, 2, 27), 0},
		{"three days ahead", NewDate(2024, 2, 27), NewDate(2024, 3, 1), 3},
		{"across leap day", NewDate(2024, 2, 28), NewDate(2024, 3, 1), 2},
		{"negative when past", NewDate(2024, 3, 1), NewDate(2024, 2, 27), -3},
		{"across year boundary", NewDate(2023, 12, 30), NewDate(2024, 1, 2), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.DaysUntil(tt.to); got != tt.want {
				t.Errorf("DaysUntil(%v, %v) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestDateAddDays(t *testing.T) {
	d := NewDate(2024, 2, 26)
	got := d.AddDays(7)
	want := NewDate(2024, 3, 4)
	if !got.Equal(want) {
		t.Errorf("AddDays(7) = %v, want %v", got, want)
	}
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		year  int
		month int
		want  int
	}{
		{2024, 2, 29},
		{2023, 2, 28},
		{2100, 2, 28}, // century, not a leap year
		{2000, 2, 29}, // divisible by 400
		{2024, 4, 30},
		{2024, 1, 31},
		{2024, 12, 31},
	}

	for _, tt := range tests {
		if got := DaysInMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("DaysInMonth(%d, %d) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2024, 1, 31)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"2024-01-31"` {
		t.Errorf("Marshal() = %s, want %q", data, "2024-01-31")
	}

	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("Unmarshal() = %v, want %v", back, d)
	}

	var null Date
	if err := json.Unmarshal([]byte("null"), &null); err != nil {
		t.Fatalf("Unmarshal(null) error = %v", err)
	}
	if !null.IsZero() {
		t.Errorf("Unmarshal(null) = %v, want zero date", null)
	}
}

func TestWeekdayIndex(t *testing.T) {
	tests := []struct {
		wd   time.Weekday
		want int
	}{
		{time.Monday, 0},
		{time.Tuesday, 1},
		{time.Saturday, 5},
		{time.Sunday, 6},
	}

	for _, tt := range tests {
		if got := WeekdayIndex(tt.wd); got != tt.want {
			t.Errorf("WeekdayIndex(%v) = %d, want %d", tt.wd, got, tt.want)
		}
	}
}
