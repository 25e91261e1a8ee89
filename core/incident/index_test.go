package incident

import "testing"

func TestBuildUniqueIndex(t *testing.T) {
	idx := BuildUniqueIndex(42, "12345678", 1, 1, "falla red corporativa")
	if got := idx.String(); got != "42_12345678_1_1_FALLA_RED_CORPORATIVA" {
		t.Fatalf("index = %s", got)
	}

	idx = BuildUniqueIndex(7, "9876543", 2, 3, "")
	if got := idx.String(); got != "7_9876543_2_3_INCIDENTE_CIBERSEGURIDAD" {
		t.Fatalf("empty description fallback: %s", got)
	}
}

func TestParseUniqueIndex(t *testing.T) {
	u, err := ParseUniqueIndex("42_12345678_1_1_FALLA_RED")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Correlativo != "42" || u.RUT != "12345678" || u.Descripcion != "FALLA_RED" {
		t.Fatalf("parsed = %+v", u)
	}

	for _, bad := range []string{
		"",
		"42_12345678_1_1",
		"42_ABC_1_1_X",
		"x_12345678_1_1_DESC",
		"42_12345678_1_1_",
	} {
		if _, err := ParseUniqueIndex(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestStripRUTCheckDigit(t *testing.T) {
	cases := map[string]string{
		"12.345.678-9": "12345678",
		"12345678-9":   "12345678",
		"9876543-K":    "9876543",
		"":             "00000000",
	}
	for in, want := range cases {
		if got := StripRUTCheckDigit(in); got != want {
			t.Fatalf("StripRUTCheckDigit(%q) = %q, want %q", in, got, want)
		}
	}
}
