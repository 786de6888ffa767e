package indexer

import (
	"reflect"
	"testing"
)

func TestSplitBatches(t *testing.T) {
	got, err := SplitBatches(6, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Batch{
		{From: 0, To: 1},
		{From: 2, To: 3},
		{From: 4, To: 5},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %+v != %+v", got, want)
	}
}

func TestSplitBatchesRemainder(t *testing.T) {
	got, err := SplitBatches(5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Batch{{From: 0, To: 4}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %+v != %+v", got, want)
	}

	empty, err := SplitBatches(0, 3)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty = %+v, %v", empty, err)
	}
}

func TestSplitBatchesInvalid(t *testing.T) {
	if _, err := SplitBatches(-1, 1); err == nil {
		t.Fatalf("expected error for negative total")
	}
	if _, err := SplitBatches(10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}
