package cache

import (
	"errors"
	"testing"
	"time"
)

func TestFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if Fresh(nil, now) {
		t.Error("Fresh(nil) = true, want false")
	}
	if !Fresh(&Entry{ExpiresAt: now.Add(time.Millisecond)}, now) {
		t.Error("entry expiring after now should be fresh")
	}
	if Fresh(&Entry{ExpiresAt: now}, now) {
		t.Error("entry expiring exactly now should not be fresh")
	}
}

func TestEntry_TTL(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "three days remaining",
			expires: time.Now().Add(72 * time.Hour),
			wantMin: 71*time.Hour + 59*time.Minute,
			wantMax: 72*time.Hour + time.Minute,
		},
		{
			name:    "already expired",
			expires: time.Now().Add(-1 * time.Hour),
			wantMin: 0,
			wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{
				ExpiresAt: tt.expires,
			}
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestEntry_Validate(t *testing.T) {
	valid := Entry{Key: "k", Series: "s", Page: 1, Skip: 0}

	tests := []struct {
		name    string
		modify  func(*Entry)
		wantErr bool
	}{
		{name: "valid", modify: func(e *Entry) {}},
		{name: "empty key", modify: func(e *Entry) { e.Key = "" }, wantErr: true},
		{name: "empty series", modify: func(e *Entry) { e.Series = "" }, wantErr: true},
		{name: "page zero", modify: func(e *Entry) { e.Page = 0 }, wantErr: true},
		{name: "negative skip", modify: func(e *Entry) { e.Skip = -20 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.modify(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Validate() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestDimensions_Series(t *testing.T) {
	tests := []struct {
		name string
		dims Dimensions
		want string
	}{
		{
			name: "endpoint only",
			dims: Dimensions{Endpoint: "/discover/movie"},
			want: "series:discover/movie",
		},
		{
			name: "sorted fields, empty omitted",
			dims: Dimensions{
				Endpoint: "/discover/tv",
				Type:     "series",
				Provider: "8",
				SortBy:   "popularity.desc",
				Region:   "US",
			},
			want: "series:discover/tv:provider=8:region=US:sort_by=popularity.desc:type=series",
		},
		{
			name: "filters",
			dims: Dimensions{
				Endpoint:    "/discover/movie",
				AgeRange:    "12-15",
				Genre:       "28",
				YearRange:   "2000-2010",
				RatingRange: "7-10",
				Language:    "de-DE",
			},
			want: "series:discover/movie:age_range=12-15:genre=28:language=de-DE:rating_range=7-10:year_range=2000-2010",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dims.Series(); got != tt.want {
				t.Errorf("Series() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDimensions_SeriesDeterministic(t *testing.T) {
	d := Dimensions{Endpoint: "/discover/movie", Provider: "337", Region: "DE", Genre: "16"}
	first := d.Series()
	for i := 0; i < 50; i++ {
		if got := d.Series(); got != first {
			t.Fatalf("Series() not deterministic: %q vs %q", got, first)
		}
	}
}
