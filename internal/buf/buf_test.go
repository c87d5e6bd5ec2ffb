package buf

import "testing"

func TestBufferView(t *testing.T) {
	b := New()
	copy(b.Bytes(), []byte("hello"))

	v := b.View(5)
	if v.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", v.Len())
	}
	if string(v.Bytes()) != "hello" {
		t.Fatalf("Bytes() = %q, want %q", v.Bytes(), "hello")
	}
}

func TestSliceAdvance(t *testing.T) {
	s := NewSlice([]byte("hello world"))
	s2 := s.Advance(6)
	if string(s2.Bytes()) != "world" {
		t.Fatalf("Advance(6) = %q, want %q", s2.Bytes(), "world")
	}
}

func TestSliceAdvancePastLenPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic advancing past length")
		}
	}()
	s := NewSlice([]byte("hi"))
	s.Advance(10)
}

func TestSliceUntilAndFrom(t *testing.T) {
	s := NewSlice([]byte("0123456789"))
	if string(s.SliceUntil(3).Bytes()) != "012" {
		t.Fatalf("SliceUntil(3) wrong")
	}
	if string(s.SliceFrom(7).Bytes()) != "789" {
		t.Fatalf("SliceFrom(7) wrong")
	}
	if string(s.Slice(2, 5).Bytes()) != "234" {
		t.Fatalf("Slice(2,5) wrong")
	}
}
