package bscope

import "testing"

func TestPushPopLIFO(t *testing.T) {
	s := New[int]()
	t1 := s.Push(1)
	t2 := s.Push(2)

	if cur, ok := s.Current(); !ok || cur != 2 {
		t.Fatalf("expected current 2, got %v,%v", cur, ok)
	}

	s.Pop(t2)
	if cur, ok := s.Current(); !ok || cur != 1 {
		t.Fatalf("expected current 1 after pop, got %v,%v", cur, ok)
	}
	s.Pop(t1)
	if _, ok := s.Current(); ok {
		t.Fatal("expected empty stack")
	}
}

func TestPopOutOfOrderPanics(t *testing.T) {
	s := New[int]()
	t1 := s.Push(1)
	_ = s.Push(2)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on non-LIFO pop")
		}
	}()
	s.Pop(t1)
}

func TestEventStatisticsAccumulatesAcrossNesting(t *testing.T) {
	s := New[string]()
	outer := s.Push("area:top")
	inner := s.Push("area:child")

	all := s.All()
	if len(all) != 2 || all[0] != "area:top" || all[1] != "area:child" {
		t.Fatalf("unexpected scope chain: %v", all)
	}
	s.Pop(inner)
	s.Pop(outer)
}
