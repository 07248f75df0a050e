package utils

import "testing"

func TestLamportsToSOL(t *testing.T) {
	cases := map[uint64]string{
		0:             "0",
		1:             "0.000000001",
		100_000_000:   "0.1",
		2_500_000_000: "2.5",
	}
	for lamports, want := range cases {
		if got := LamportsToSOL(lamports).String(); got != want {
			t.Errorf("LamportsToSOL(%d) = %s, want %s", lamports, got, want)
		}
	}
}

func TestParseSOL(t *testing.T) {
	lamports, err := ParseSOL("0.1")
	if err != nil {
		t.Fatalf("ParseSOL failed: %v", err)
	}
	if lamports != 100_000_000 {
		t.Errorf("expected 100000000 lamports, got %d", lamports)
	}

	if _, err := ParseSOL("0.0000000001"); err == nil {
		t.Error("expected sub-lamport amount to be rejected")
	}
	if _, err := ParseSOL("-1"); err == nil {
		t.Error("expected negative amount to be rejected")
	}
	if _, err := ParseSOL("abc"); err == nil {
		t.Error("expected malformed amount to be rejected")
	}
}
