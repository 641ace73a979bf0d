package goflow

import (
	"testing"

	"gorgonia.org/tensor"
)

func TestTrailingBatch(t *testing.T) {
	tests := []struct {
		full, want tensor.Shape
		batch      tensor.Shape
		ok         bool
	}{
		{tensor.Shape{3}, tensor.Shape{3}, tensor.Shape{}, true},
		{tensor.Shape{5, 3}, tensor.Shape{3}, tensor.Shape{5}, true},
		{tensor.Shape{2, 5, 3}, tensor.Shape{3}, tensor.Shape{2, 5}, true},
		{tensor.Shape{4}, tensor.Shape{}, tensor.Shape{4}, true},
		{tensor.Shape{5, 2}, tensor.Shape{3}, nil, false},
		{tensor.Shape{}, tensor.Shape{3}, nil, false},
	}

	for i, test := range tests {
		batch, err := TrailingBatch("x", test.full, test.want)
		if test.ok && err != nil {
			t.Errorf("test %d: unexpected error: %v", i, err)
			continue
		}
		if !test.ok {
			if err == nil {
				t.Errorf("test %d: expected an error", i)
			}
			continue
		}
		if !batch.Eq(test.batch) {
			t.Errorf("test %d: expected batch %v but got %v", i, test.batch,
				batch)
		}
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b, want tensor.Shape
		ok         bool
	}{
		{tensor.Shape{}, tensor.Shape{}, tensor.Shape{}, true},
		{tensor.Shape{3}, tensor.Shape{}, tensor.Shape{3}, true},
		{tensor.Shape{3}, tensor.Shape{3}, tensor.Shape{3}, true},
		{tensor.Shape{1}, tensor.Shape{4}, tensor.Shape{4}, true},
		{tensor.Shape{2, 1}, tensor.Shape{3}, tensor.Shape{2, 3}, true},
		{tensor.Shape{2}, tensor.Shape{3}, nil, false},
	}

	for i, test := range tests {
		got, err := BroadcastShapes(test.a, test.b)
		if test.ok && err != nil {
			t.Errorf("test %d: unexpected error: %v", i, err)
			continue
		}
		if !test.ok {
			if err == nil {
				t.Errorf("test %d: expected an error", i)
			}
			continue
		}
		if !got.Eq(test.want) {
			t.Errorf("test %d: expected %v but got %v", i, test.want, got)
		}
	}
}

func TestBatchIndex(t *testing.T) {
	// Result batch (2, 3); input batch (1, 3) repeats along dim 0.
	in := tensor.Shape{1, 3}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if got := BatchIndex([]int{i, j}, in); got != j {
				t.Errorf("coords (%d, %d): expected %d but got %d", i, j, j,
					got)
			}
		}
	}

	// Input with fewer dimensions aligns at the trailing dimension.
	if got := BatchIndex([]int{1, 2}, tensor.Shape{3}); got != 2 {
		t.Errorf("expected 2 but got %d", got)
	}
}

func TestCoords(t *testing.T) {
	shape := tensor.Shape{2, 3, 4}
	for flat := 0; flat < Prod(shape); flat++ {
		coords := Coords(flat, shape)
		back := 0
		for i, c := range coords {
			back = back*shape[i] + c
		}
		if back != flat {
			t.Errorf("flat %d: round trip gave %d", flat, back)
		}
	}
}
