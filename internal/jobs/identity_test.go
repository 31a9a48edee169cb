package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveID_StableAcrossCosmeticChanges(t *testing.T) {
	a := DeriveID("Acme Corp", "Senior  Go Engineer", "Berlin", "https://jobs.example/1")
	b := DeriveID("  ACME corp", "senior go\tengineer ", "BERLIN", " https://jobs.example/1 ")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	// Full-width characters normalise to ASCII under NFKC.
	c := DeriveID("Ａｃｍｅ Corp", "Senior Go Engineer", "Berlin", "https://jobs.example/1")
	assert.Equal(t, a, c)
}

func TestDeriveID_DistinguishesAttributes(t *testing.T) {
	base := DeriveID("Acme", "Engineer", "Berlin", "https://jobs.example/1")
	assert.NotEqual(t, base, DeriveID("Acme", "Engineer", "Munich", "https://jobs.example/1"))
	assert.NotEqual(t, base, DeriveID("Acme", "Engineer", "Berlin", "https://jobs.example/2"))
	// The separator keeps attribute boundaries significant.
	assert.NotEqual(t, DeriveID("a b", "c", "", ""), DeriveID("a", "b c", "", ""))
}

func TestPosting_Identifier(t *testing.T) {
	p := Posting{Company: "Acme", Title: "Engineer", Location: "Berlin", URL: "u"}
	assert.Equal(t, DeriveID("Acme", "Engineer", "Berlin", "u"), p.Identifier())

	p.ID = "explicit-1"
	assert.Equal(t, "explicit-1", p.Identifier())
}

func TestParsePostedDate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   time.Time
		wantOK bool
	}{
		{name: "rfc3339", input: "2026-09-20T10:00:00Z", want: time.Date(2026, 9, 20, 10, 0, 0, 0, time.UTC), wantOK: true},
		{name: "date only", input: "2026-09-20", want: time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC), wantOK: true},
		{name: "space separated", input: "2026-09-20 08:30:00", want: time.Date(2026, 9, 20, 8, 30, 0, 0, time.UTC), wantOK: true},
		{name: "unix seconds", input: "1790000000", want: time.Unix(1790000000, 0).UTC(), wantOK: true},
		{name: "unix millis", input: "1790000000123", want: time.UnixMilli(1790000000123).UTC(), wantOK: true},
		{name: "empty", input: "  ", wantOK: false},
		{name: "garbage", input: "last tuesday", wantOK: false},
		{name: "zero timestamp", input: "0", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePostedDate(tt.input)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
			}
		})
	}
}
