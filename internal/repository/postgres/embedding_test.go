package postgres

import "testing"

func TestVectorLiteral(t *testing.T) {
	cases := []struct {
		name string
		in   []float32
		want string
	}{
		{"empty", []float32{}, "[]"},
		{"single", []float32{1}, "[1]"},
		{"multiple", []float32{0.5, -0.25, 2}, "[0.5,-0.25,2]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VectorLiteral(tc.in); got != tc.want {
				t.Errorf("VectorLiteral(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestVectorLiteral_RoundTripPrecision(t *testing.T) {
	// -1 precision must emit the shortest representation that parses back to
	// the same float32, so cached and recomputed vectors stay bit-identical.
	in := []float32{0.1, 0.2, 0.30000001}
	a := VectorLiteral(in)
	b := VectorLiteral(in)
	if a != b {
		t.Errorf("expected deterministic output, got %q and %q", a, b)
	}
}
