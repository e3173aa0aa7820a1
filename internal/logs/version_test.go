package logs

import "testing"

func TestParseVersion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in        string
		canonical string
	}{
		{in: "1.20.1", canonical: "v1.20.1"},
		{in: "1.21", canonical: "v1.21.0"},
		{in: "1.20-pre1", canonical: "v1.20.0-pre1"},
		{in: "1.21 Pre-Release 2", canonical: "v1.21.0-Pre-Release-2"},
		{in: "0.92.0+1.20.1", canonical: "v0.92.0+1.20.1"},
		{in: "1.20.4-R0.1-SNAPSHOT", canonical: "v1.20.4-R0.1-SNAPSHOT"},
		{in: "47.2.0", canonical: "v47.2.0"},
		{in: "1.20.1-047.02", canonical: "v1.20.1-47.2"},
		{in: "23w45a", canonical: ""},
		{in: "", canonical: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got := ParseVersion(tt.in)
			if got.Canonical() != tt.canonical {
				t.Fatalf("ParseVersion(%q).Canonical() = %q, want %q", tt.in, got.Canonical(), tt.canonical)
			}
			if got.String() != tt.in {
				t.Fatalf("raw form not preserved: %q", got.String())
			}
		})
	}
}

func TestVersionCompare(t *testing.T) {
	t.Parallel()
	if ParseVersion("1.20.1").Compare(ParseVersion("1.20.10")) >= 0 {
		t.Fatalf("1.20.1 must sort before 1.20.10")
	}
	if ParseVersion("1.20-pre1").Compare(ParseVersion("1.20")) >= 0 {
		t.Fatalf("pre-release must sort before release")
	}
	if ParseVersion("23w45a").Compare(ParseVersion("23w46a")) >= 0 {
		t.Fatalf("snapshots compare lexically")
	}
	if !ParseVersion("1.20.6").AtLeast("1.20.5") {
		t.Fatalf("1.20.6 >= 1.20.5")
	}
	if ParseVersion("24w10a").AtLeast("1.0") {
		t.Fatalf("snapshots are never AtLeast a release")
	}
	if v := ParseVersion("17.0.8"); v.Major() != 17 || v.Minor() != 0 || v.Patch() != 8 {
		t.Fatalf("unexpected components %d.%d.%d", v.Major(), v.Minor(), v.Patch())
	}
}
