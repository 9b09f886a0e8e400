package listing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsMalformedID(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid uuid text", &pgconn.PgError{Code: "22P02"}, true},
		{"wrapped", fmt.Errorf("listing: get: %w", &pgconn.PgError{Code: "22P02"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isMalformedID(tc.err); got != tc.want {
				t.Fatalf("isMalformedID(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
