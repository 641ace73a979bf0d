package bijection

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goflow"
	"gonum.org/v1/gonum/mat"
)

func TestTriangularAffineRoundTrip(t *testing.T) {
	lower := mat.NewTriDense(3, mat.Lower, []float64{
		2, 0, 0,
		0.5, 1.5, 0,
		-1, 0.25, 3,
	})

	tri, err := NewTriangularAffine(vecOf(1, -2, 0.5), lower)
	if err != nil {
		t.Fatal(err)
	}

	checkRoundTrip(t, tri, vecOf(0.3, -1.2, 2.5))

	_, logDet, err := tri.TransformAndLogDet(vecOf(0, 0, 0), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := math.Log(2) + math.Log(1.5) + math.Log(3)
	if math.Abs(logDet-want) > tolerance {
		t.Errorf("expected log det %v but got %v", want, logDet)
	}
}

func TestTriangularAffineInverseExact(t *testing.T) {
	lower := mat.NewTriDense(2, mat.Lower, []float64{
		2, 0,
		1, 4,
	})
	tri, err := NewTriangularAffine(vecOf(1, -1), lower)
	if err != nil {
		t.Fatal(err)
	}

	// y = L*[3, 0.5] + loc = [7, 4], so the solve must recover
	// exactly x = [3, 0.5].
	x, logDet, err := tri.InverseAndLogDet(vecOf(7, 4), nil)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{3, 0.5}
	for i, v := range goflow.Flat(x) {
		if math.Abs(v-want[i]) > tolerance {
			t.Errorf("expected x[%d] = %v but got %v", i, want[i], v)
		}
	}

	if wantDet := -(math.Log(2) + math.Log(4)); math.Abs(logDet-wantDet) > tolerance {
		t.Errorf("expected log det %v but got %v", wantDet, logDet)
	}
}

func TestTriangularAffineInvalid(t *testing.T) {
	singular := mat.NewTriDense(2, mat.Lower, []float64{
		1, 0,
		3, 0,
	})
	if _, err := NewTriangularAffine(vecOf(0, 0), singular); err == nil {
		t.Error("expected an error for a zero diagonal entry")
	}

	lower := mat.NewTriDense(2, mat.Lower, []float64{
		1, 0,
		0, 1,
	})
	if _, err := NewTriangularAffine(vecOf(0, 0, 0), lower); err == nil {
		t.Error("expected an error for a loc length mismatch")
	}
}
