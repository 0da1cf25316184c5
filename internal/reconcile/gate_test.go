package reconcile

import (
	"context"
	"testing"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		plans   []Plan
		mutate  bool
		total   int
		preview string
	}{
		{
			name:    "single link to open",
			plans:   []Plan{{ToOpen: 1}},
			mutate:  true,
			total:   1,
			preview: "About to open 1 bookmark link and group them by their folder titles. Continue?",
		},
		{
			name:    "links across folders",
			plans:   []Plan{{ToOpen: 2}, {ToOpen: 1}, {GroupingSatisfied: true}},
			mutate:  true,
			total:   3,
			preview: "About to open 3 bookmark links and group them by their folder titles. Continue?",
		},
		{
			name:    "regroup only",
			plans:   []Plan{{GroupingSatisfied: true}, {GroupingSatisfied: false}},
			mutate:  true,
			preview: "Group open tabs by bookmark folder titles?",
		},
		{
			name:  "already matching",
			plans: []Plan{{GroupingSatisfied: true}, {GroupingSatisfied: true}},
		},
		{
			name: "no plans",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.plans)
			if d.Mutate != tt.mutate || d.TotalToOpen != tt.total || d.Preview != tt.preview {
				t.Fatalf("Decide = %+v, want mutate=%v total=%d preview=%q", d, tt.mutate, tt.total, tt.preview)
			}
		})
	}
}

func TestAllocatorWrapsAround(t *testing.T) {
	a := NewAllocator(6, nil)
	got := []string{a.Color()}
	for i := 0; i < 3; i++ {
		a = a.Next()
		got = append(got, a.Color())
	}
	want := []string{"cyan", "orange", "blue", "red"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("colors = %v, want %v", got, want)
		}
	}
	if a.Index != 1 {
		t.Fatalf("expected index 1 after wrap, got %d", a.Index)
	}

	if NewAllocator(-1, []string{"x", "y"}).Color() != "y" {
		t.Fatal("negative index should wrap from the end")
	}
}

func TestLoadAllocator(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		a, err := LoadAllocator(ctx, newFakeStore(), nil)
		if err != nil || a.Index != 0 {
			t.Fatalf("expected index 0, got %d (%v)", a.Index, err)
		}
	})

	t.Run("stored value", func(t *testing.T) {
		s := newFakeStore()
		s.values[ColorIndexKey] = " 5 "
		a, err := LoadAllocator(ctx, s, nil)
		if err != nil || a.Color() != "purple" {
			t.Fatalf("expected purple, got %q (%v)", a.Color(), err)
		}
	})

	t.Run("malformed value", func(t *testing.T) {
		s := newFakeStore()
		s.values[ColorIndexKey] = "blue"
		a, err := LoadAllocator(ctx, s, nil)
		if err != nil || a.Index != 0 {
			t.Fatalf("expected reset to 0, got %d (%v)", a.Index, err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		s := newFakeStore()
		s.failGet = true
		a, err := LoadAllocator(ctx, s, nil)
		if err == nil {
			t.Fatal("expected store error")
		}
		if a.Index != 0 || a.Color() != "blue" {
			t.Fatalf("expected usable allocator at 0, got %+v", a)
		}
	})

	t.Run("nil store", func(t *testing.T) {
		a, err := LoadAllocator(ctx, nil, []string{"grey"})
		if err != nil || a.Color() != "grey" {
			t.Fatalf("unexpected allocator %+v (%v)", a, err)
		}
	})
}

func TestSaveAllocator(t *testing.T) {
	s := newFakeStore()
	if err := SaveAllocator(context.Background(), s, NewAllocator(11, nil)); err != nil {
		t.Fatalf("SaveAllocator: %v", err)
	}
	if s.values[ColorIndexKey] != "3" {
		t.Fatalf("expected stored index 3, got %q", s.values[ColorIndexKey])
	}
}
