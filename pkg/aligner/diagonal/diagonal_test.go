package diagonal

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureOnDiagonal(t *testing.T) {
	if f := Feature(2, 4, 3, 6); f != 0 {
		t.Errorf("Expected 0 on the diagonal, got %f", f)
	}
	if f := Feature(1, 1, 1, 1); f != 0 {
		t.Errorf("Expected 0 for 1x1, got %f", f)
	}
}

func TestFeatureDecreasesAwayFromDiagonal(t *testing.T) {
	// target position 1 of 4 sits at 0.25; source positions of 8 step by 0.125
	prev := Feature(1, 2, 4, 8)
	for i := 3; i <= 8; i++ {
		f := Feature(1, i, 4, 8)
		if f >= prev {
			t.Fatalf("feature should decrease moving away from the diagonal: i=%d got %f after %f", i, f, prev)
		}
		prev = f
	}
	assert.InDelta(t, -0.125, Feature(1, 1, 4, 8), 1e-12)
	assert.InDelta(t, -0.75, Feature(1, 8, 4, 8), 1e-12)
}

func TestUnnormalizedProbZeroTensionIsUniform(t *testing.T) {
	for i := 1; i <= 5; i++ {
		if p := UnnormalizedProb(2, i, 7, 5, 0); p != 1 {
			t.Errorf("Expected 1 with zero tension, got %f for i=%d", p, i)
		}
	}
}

func TestComputeZZeroTensionEqualsLength(t *testing.T) {
	for _, m := range []int{1, 2, 7, 40} {
		assert.InDelta(t, float64(m), ComputeZ(1, 3, m, 0), 1e-12)
		assert.InDelta(t, float64(m), ComputeZClosed(1, 3, m, 0), 1e-12)
	}
}

func TestComputeZClosedMatchesDirect(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for k := 0; k < 2000; k++ {
		n := 1 + rng.Intn(60)
		m := 1 + rng.Intn(60)
		j := 1 + rng.Intn(n)
		tension := rng.Float64() * 20
		if k%10 == 0 {
			tension = 0
		}

		direct := ComputeZ(j, n, m, tension)
		closed := ComputeZClosed(j, n, m, tension)
		require.Greater(t, direct, 0.0)
		require.InEpsilonf(t, direct, closed, 1e-9, "j=%d n=%d m=%d tension=%f", j, n, m, tension)
	}
}

func TestComputeZLargeTensionConcentrates(t *testing.T) {
	// target 2 of 3 lands exactly on source 4 of 6; every other position
	// is at least 1/6 away and vanishes under a large tension
	z := ComputeZ(2, 3, 6, 500)
	assert.InDelta(t, 1.0, z, 1e-12)
	assert.InDelta(t, z, ComputeZClosed(2, 3, 6, 500), 1e-12)

	// off-diagonal target: nearest source index dominates
	z = ComputeZ(1, 3, 2, 400)
	nearest := UnnormalizedProb(1, 1, 3, 2, 400)
	assert.InEpsilon(t, nearest, z, 1e-9)
	assert.InEpsilon(t, z, ComputeZClosed(1, 3, 2, 400), 1e-9)
}

func TestComputeZPositive(t *testing.T) {
	for _, tension := range []float64{0, 0.5, 4, 50} {
		for m := 1; m <= 10; m++ {
			for j := 1; j <= 5; j++ {
				z := Direct.Z(j, 5, m, tension)
				if !(z > 0) || math.IsInf(z, 0) {
					t.Fatalf("Z should be positive and finite, got %f (j=%d m=%d tension=%f)", z, j, m, tension)
				}
			}
		}
	}
}

func TestComputeDLogZ(t *testing.T) {
	// zero tension: plain average of the feature
	n, m, j := 4, 5, 3
	mean := 0.0
	for i := 1; i <= m; i++ {
		mean += Feature(j, i, n, m)
	}
	mean /= float64(m)
	assert.InDelta(t, mean, ComputeDLogZ(j, n, m, 0), 1e-12)

	// numerical derivative of log Z
	tension := 3.0
	h := 1e-6
	numeric := (math.Log(ComputeZ(j, n, m, tension+h)) - math.Log(ComputeZ(j, n, m, tension-h))) / (2 * h)
	assert.InDelta(t, numeric, ComputeDLogZ(j, n, m, tension), 1e-6)

	// more tension pulls the expected feature toward 0
	assert.Greater(t, ComputeDLogZ(j, n, m, 10), ComputeDLogZ(j, n, m, 1))
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"", Direct, false},
		{"direct", Direct, false},
		{"Closed", ClosedForm, false},
		{"closed-form", ClosedForm, false},
		{"fast", Direct, true},
	}
	for _, tc := range tests {
		got, err := ParseMethod(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMethod(%q) should fail", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMethod(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseMethod(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if ClosedForm.String() != "closed" || Direct.String() != "direct" {
		t.Error("unexpected method names")
	}
}

func BenchmarkComputeZ(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ComputeZ(17, 40, 45, 4)
	}
}

func BenchmarkComputeZClosed(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ComputeZClosed(17, 40, 45, 4)
	}
}
