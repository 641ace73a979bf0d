package bijection

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goflow"
)

func testChain(t *testing.T) *Chain {
	t.Helper()

	affine, err := NewAffine(vecOf(1, -1), vecOf(2, 3))
	if err != nil {
		t.Fatal(err)
	}
	scale, err := NewScale(vecOf(0.5, 0.25))
	if err != nil {
		t.Fatal(err)
	}

	chain, err := NewChain(affine, scale, NewTanh(2))
	if err != nil {
		t.Fatal(err)
	}
	return chain
}

func TestChainRoundTrip(t *testing.T) {
	checkRoundTrip(t, testChain(t), vecOf(0.3, -0.2))
}

// TestChainLogDetSum checks that the chain's log-determinant is the
// sum of its members' log-determinants along the forward trajectory.
func TestChainLogDetSum(t *testing.T) {
	chain := testChain(t)
	x := vecOf(0.1, 0.4)

	_, got, err := chain.TransformAndLogDet(x, nil)
	if err != nil {
		t.Fatal(err)
	}

	want := 0.0
	y := x
	for _, b := range chain.Bijections() {
		var ld float64
		y, ld, err = b.TransformAndLogDet(y, nil)
		if err != nil {
			t.Fatal(err)
		}
		want += ld
	}

	if math.Abs(got-want) > tolerance {
		t.Errorf("expected log det %v but got %v", want, got)
	}
}

func TestChainShapeMismatch(t *testing.T) {
	affine, err := NewAffine(vecOf(0, 0), vecOf(1, 1))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewChain(affine, NewExp(3)); err == nil {
		t.Error("expected an error for mismatched member shapes")
	}
	if _, err := NewChain(); err == nil {
		t.Error("expected an error for an empty chain")
	}
}

// TestMergeChains checks that flattening nested chains preserves both
// the member order and the transformation exactly.
func TestMergeChains(t *testing.T) {
	inner := testChain(t)

	outerAffine, err := NewAffine(vecOf(0.2, 0.7), vecOf(1.5, 2.5))
	if err != nil {
		t.Fatal(err)
	}
	nested, err := NewChain(inner, outerAffine)
	if err != nil {
		t.Fatal(err)
	}

	merged := nested.MergeChains()
	if len(merged.Bijections()) != 4 {
		t.Fatalf("expected 4 flattened bijections but got %d",
			len(merged.Bijections()))
	}
	for _, b := range merged.Bijections() {
		if _, ok := b.(*Chain); ok {
			t.Fatal("expected no nested chains after merging")
		}
	}

	x := vecOf(0.15, -0.35)
	wantY, wantLd, err := nested.TransformAndLogDet(x, nil)
	if err != nil {
		t.Fatal(err)
	}
	gotY, gotLd, err := merged.TransformAndLogDet(x, nil)
	if err != nil {
		t.Fatal(err)
	}

	want, got := goflow.Flat(wantY), goflow.Flat(gotY)
	for i := range want {
		if math.Abs(want[i]-got[i]) > tolerance {
			t.Errorf("entry %d: expected %v but got %v", i, want[i], got[i])
		}
	}
	if math.Abs(wantLd-gotLd) > tolerance {
		t.Errorf("expected log det %v but got %v", wantLd, gotLd)
	}
}

func TestInvert(t *testing.T) {
	affine, err := NewAffine(vecOf(1, 2), vecOf(2, 4))
	if err != nil {
		t.Fatal(err)
	}
	inverted := NewInvert(affine)

	x := vecOf(3, -1)
	wantY, wantLd, err := affine.InverseAndLogDet(x, nil)
	if err != nil {
		t.Fatal(err)
	}
	gotY, gotLd, err := inverted.TransformAndLogDet(x, nil)
	if err != nil {
		t.Fatal(err)
	}

	want, got := goflow.Flat(wantY), goflow.Flat(gotY)
	for i := range want {
		if math.Abs(want[i]-got[i]) > tolerance {
			t.Errorf("entry %d: expected %v but got %v", i, want[i], got[i])
		}
	}
	if math.Abs(wantLd-gotLd) > tolerance {
		t.Errorf("expected log det %v but got %v", wantLd, gotLd)
	}

	checkRoundTrip(t, inverted, vecOf(0.5, 0.5))
}

func TestChainParameters(t *testing.T) {
	chain := testChain(t)

	// Affine contributes loc and log-scale, Scale only a log-scale,
	// Tanh nothing.
	if n := len(chain.Parameters()); n != 3 {
		t.Errorf("expected 3 parameters but got %d", n)
	}
}
