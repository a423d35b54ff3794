package semver

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{"simple", "1.0.5", Version{1, 0, 5}, false},
		{"zeros", "0.0.0", Version{0, 0, 0}, false},
		{"large", "10.20.30", Version{10, 20, 30}, false},
		{"missing part", "1.0", Version{}, true},
		{"extra part", "1.0.0.0", Version{}, true},
		{"leading zero major", "01.0.0", Version{}, true},
		{"leading zero minor", "1.02.0", Version{}, true},
		{"non numeric", "a.b.c", Version{}, true},
		{"empty", "", Version{}, true},
		{"negative", "-1.0.0", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestVersion_String(t *testing.T) {
	if got := (Version{1, 2, 3}).String(); got != "1.2.3" {
		t.Errorf("String() = %q, want %q", got, "1.2.3")
	}
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b Version
		want int
	}{
		{"equal", Version{1, 0, 0}, Version{1, 0, 0}, 0},
		{"major less", Version{1, 0, 0}, Version{2, 0, 0}, -1},
		{"major greater", Version{2, 0, 0}, Version{1, 0, 0}, 1},
		{"minor less", Version{1, 1, 0}, Version{1, 2, 0}, -1},
		{"patch less", Version{1, 0, 1}, Version{1, 0, 2}, -1},
		{"patch beats nothing else", Version{1, 0, 9}, Version{1, 1, 0}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("%v.Compare(%v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestVersion_BumpMajor(t *testing.T) {
	tests := []struct {
		name string
		in   Version
		want Version
	}{
		{"zero", Version{0, 0, 0}, Version{1, 0, 0}},
		{"mid version", Version{1, 2, 3}, Version{2, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.BumpMajor(); got != tt.want {
				t.Errorf("BumpMajor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PackageName
		wantErr bool
	}{
		{"simple", "elm/core", PackageName{"elm", "core"}, false},
		{"hyphenated", "elm-community/random-extra", PackageName{"elm-community", "random-extra"}, false},
		{"missing slash", "elmcore", PackageName{}, true},
		{"too many slashes", "elm/core/extra", PackageName{}, true},
		{"uppercase rejected", "Elm/core", PackageName{}, true},
		{"empty author", "/core", PackageName{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParsePackageName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPackageName_CaseSensitiveEquality(t *testing.T) {
	a := PackageName{Author: "elm", Project: "core"}
	b := PackageName{Author: "Elm", Project: "core"}
	if a == b {
		t.Error("package names should be case-sensitive")
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Range
		wantErr bool
	}{
		{
			"simple",
			"1.0.0 <= v < 2.0.0",
			Range{Version{1, 0, 0}, Version{2, 0, 0}},
			false,
		},
		{
			"tight spacing",
			"1.0.0<=v<2.0.0",
			Range{Version{1, 0, 0}, Version{2, 0, 0}},
			false,
		},
		{"malformed", "1.0.0 - 2.0.0", Range{}, true},
		{"non-monotonic", "2.0.0 <= v < 1.0.0", Range{}, true},
		{"equal bounds", "1.0.0 <= v < 1.0.0", Range{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRange(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseRange(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRange_Contains(t *testing.T) {
	r := Range{Version{1, 0, 0}, Version{2, 0, 0}}
	tests := []struct {
		name string
		v    Version
		want bool
	}{
		{"low bound inclusive", Version{1, 0, 0}, true},
		{"mid range", Version{1, 5, 0}, true},
		{"high bound exclusive", Version{2, 0, 0}, false},
		{"below range", Version{0, 9, 9}, false},
		{"above range", Version{2, 0, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.v); got != tt.want {
				t.Errorf("Range(%v).Contains(%v) = %v, want %v", r, tt.v, got, tt.want)
			}
		})
	}
}

func TestRange_ExactRange(t *testing.T) {
	got := ExactRange(Version{1, 2, 3})
	want := Range{Version{1, 2, 3}, Version{2, 0, 0}}
	if got != want {
		t.Errorf("ExactRange(1.2.3) = %v, want %v", got, want)
	}
}

func TestRange_Intersect(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Range
		want   Range
		wantOK bool
	}{
		{
			name:   "overlapping",
			a:      Range{Version{1, 0, 0}, Version{2, 0, 0}},
			b:      Range{Version{1, 5, 0}, Version{3, 0, 0}},
			want:   Range{Version{1, 5, 0}, Version{2, 0, 0}},
			wantOK: true,
		},
		{
			name:   "identical",
			a:      Range{Version{1, 0, 0}, Version{2, 0, 0}},
			b:      Range{Version{1, 0, 0}, Version{2, 0, 0}},
			want:   Range{Version{1, 0, 0}, Version{2, 0, 0}},
			wantOK: true,
		},
		{
			name:   "disjoint",
			a:      Range{Version{1, 0, 0}, Version{2, 0, 0}},
			b:      Range{Version{2, 0, 0}, Version{3, 0, 0}},
			wantOK: false,
		},
		{
			name:   "nested",
			a:      Range{Version{1, 0, 0}, Version{5, 0, 0}},
			b:      Range{Version{2, 0, 0}, Version{3, 0, 0}},
			want:   Range{Version{2, 0, 0}, Version{3, 0, 0}},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.a.Intersect(tt.b)
			if ok != tt.wantOK {
				t.Fatalf("Intersect() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Intersect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRange_Intersect_CommutativeAndAssociative(t *testing.T) {
	a := Range{Version{1, 0, 0}, Version{3, 0, 0}}
	b := Range{Version{2, 0, 0}, Version{5, 0, 0}}
	c := Range{Version{2, 5, 0}, Version{4, 0, 0}}

	ab, abOK := a.Intersect(b)
	ba, baOK := b.Intersect(a)
	if abOK != baOK || ab != ba {
		t.Fatalf("intersection is not commutative: a∩b=%v(%v) b∩a=%v(%v)", ab, abOK, ba, baOK)
	}

	abc1, ok1 := mustIntersect(t, ab, abOK, c)
	bc, bcOK := b.Intersect(c)
	abc2, ok2 := mustIntersect(t, a, true, bc)
	_ = bcOK

	if ok1 != ok2 || abc1 != abc2 {
		t.Errorf("intersection is not associative: (a∩b)∩c=%v(%v) a∩(b∩c)=%v(%v)", abc1, ok1, abc2, ok2)
	}
}

func mustIntersect(t *testing.T, r Range, ok bool, other Range) (Range, bool) {
	t.Helper()
	if !ok {
		return Range{}, false
	}
	return r.Intersect(other)
}
