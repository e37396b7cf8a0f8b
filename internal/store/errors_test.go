package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"connection failure", &pgconn.PgError{Code: "08006"}, KindTransient},
		{"too many connections", &pgconn.PgError{Code: "53300"}, KindTransient},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, KindTransient},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, KindTransient},
		{"database starting up", &pgconn.PgError{Code: "57P03"}, KindTransient},
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindPermanent},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, KindPermanent},
		{"invalid text representation", &pgconn.PgError{Code: "22P02"}, KindPermanent},
		{"plain network error", errors.New("connection reset by peer"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("append", tt.err)
			if got.Kind != tt.want {
				t.Errorf("classify() Kind = %v, want %v", got.Kind, tt.want)
			}
			if got.Op != "append" {
				t.Errorf("classify() Op = %q, want %q", got.Op, "append")
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	transient := classify("append", &pgconn.PgError{Code: "08006"})
	if !IsTransient(transient) {
		t.Error("IsTransient(connection failure) = false, want true")
	}

	permanent := classify("append", &pgconn.PgError{Code: "23505"})
	if IsTransient(permanent) {
		t.Error("IsTransient(unique violation) = true, want false")
	}

	// Classification survives further wrapping.
	wrapped := fmt.Errorf("ingest raw message: %w", transient)
	if !IsTransient(wrapped) {
		t.Error("IsTransient(wrapped transient) = false, want true")
	}

	if IsTransient(errors.New("not a store error")) {
		t.Error("IsTransient(plain error) = true, want false")
	}
}

func TestErrorUnwrap(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := classify("upsert_levels", pgErr)

	var got *pgconn.PgError
	if !errors.As(err, &got) {
		t.Fatal("errors.As failed to recover the pg error")
	}
	if got.Code != "23505" {
		t.Errorf("unwrapped Code = %q, want %q", got.Code, "23505")
	}
}

func TestErrorString(t *testing.T) {
	err := classify("scan", errors.New("boom"))
	want := "store scan: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestErrorKindString(t *testing.T) {
	if KindTransient.String() != "transient" {
		t.Errorf("KindTransient.String() = %q, want %q", KindTransient.String(), "transient")
	}
	if KindPermanent.String() != "permanent" {
		t.Errorf("KindPermanent.String() = %q, want %q", KindPermanent.String(), "permanent")
	}
}
