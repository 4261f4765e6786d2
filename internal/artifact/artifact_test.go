package artifact

import (
	"reflect"
	"testing"
)

func TestPathJoinAndChild(t *testing.T) {
	p := ParsePath("a.b")
	if got := p.Join("c.d").String(); got != "a.b.c.d" {
		t.Errorf("Join = %q, want a.b.c.d", got)
	}
	if got := p.Join("").String(); got != "a.b" {
		t.Errorf("Join empty = %q, want a.b", got)
	}
	// Child treats its segment literally, dots included.
	if got := p.Child("x.y").String(); got != "a.b.x.y" {
		t.Errorf("Child = %q", got)
	}
	if got := len(p.Child("x.y")); got != 3 {
		t.Errorf("Child segments = %d, want 3", got)
	}
}

func TestPutGetReplaces(t *testing.T) {
	a := New()
	a.Put(ParsePath("x.y"), 1)
	a.Put(ParsePath("x.y"), "two")

	v, ok := a.Get(ParsePath("x.y"))
	if !ok || v != "two" {
		t.Errorf("Get = %v, want two", v)
	}
	if _, ok := a.Get(ParsePath("x.z")); ok {
		t.Error("Get on absent path should report false")
	}
}

func TestIntCoercion(t *testing.T) {
	cases := []struct {
		name string
		v    any
		want int
	}{
		{"uint64", uint64(7), 7},
		{"uint16", uint16(300), 300},
		{"uint8", uint8(9), 9},
		{"int", 42, 42},
		{"int64", int64(-5), -5},
		{"int8", int8(-1), -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := New()
			a.Put(ParsePath("v"), tc.v)
			got, ok := a.Int(ParsePath("v"))
			if !ok || got != tc.want {
				t.Errorf("Int = %d (ok=%v), want %d", got, ok, tc.want)
			}
		})
	}

	a := New()
	a.Put(ParsePath("v"), "nope")
	if _, ok := a.Int(ParsePath("v")); ok {
		t.Error("Int on a string should report false")
	}
}

func TestTakeBytesDrains(t *testing.T) {
	a := New()
	p := ParsePath("octets")
	for _, b := range []byte{0x01, 0x02, 0x03} {
		a.AppendByte(p, b)
	}

	tail, err := a.TakeBytes(p, 2)
	if err != nil {
		t.Fatalf("TakeBytes: %v", err)
	}
	if !reflect.DeepEqual(tail, []byte{0x02, 0x03}) {
		t.Errorf("tail = % X, want 02 03", tail)
	}
	if a.Len(p) != 1 {
		t.Errorf("Len = %d, want 1", a.Len(p))
	}

	if _, err := a.TakeBytes(p, 2); err == nil {
		t.Fatal("expected error taking more than buffered")
	}

	if _, err := a.TakeBytes(p, 1); err != nil {
		t.Fatalf("TakeBytes last: %v", err)
	}
	if _, ok := a.Bytes(p); ok {
		t.Error("drained buffer should disappear")
	}
}

func TestAppendList(t *testing.T) {
	a := New()
	p := ParsePath("items")
	a.Append(p, "first")
	a.Append(p, "second")

	list, ok := a.List(p)
	if !ok || len(list) != 2 || list[0] != "first" || list[1] != "second" {
		t.Errorf("List = %v", list)
	}
}

func TestTakeExportsSubtree(t *testing.T) {
	a := New()
	a.Put(ParsePath("seg.class"), uint64(0x20))
	a.Put(ParsePath("seg.instance"), uint64(1))

	v, ok := a.Take(ParsePath("seg"))
	if !ok {
		t.Fatal("Take reported absent")
	}
	m, ok := v.(map[string]any)
	if !ok || m["class"] != uint64(0x20) || m["instance"] != uint64(1) {
		t.Errorf("Take = %v", v)
	}
	if _, ok := a.Get(ParsePath("seg")); ok {
		t.Error("taken subtree should be gone")
	}
}

func TestDescendingThroughLeafRemaps(t *testing.T) {
	a := New()
	a.Put(ParsePath("x"), 1)
	a.Put(ParsePath("x.y"), 2)

	v, ok := a.Int(ParsePath("x.y"))
	if !ok || v != 2 {
		t.Errorf("x.y = %d (ok=%v), want 2", v, ok)
	}
	if _, ok := a.Int(ParsePath("x")); ok {
		t.Error("x should no longer be a scalar")
	}
}

func TestFlattenInsertionOrder(t *testing.T) {
	a := New()
	a.Put(ParsePath("b"), 1)
	a.Put(ParsePath("a.z"), 2)
	a.Put(ParsePath("a.m"), 3)
	a.AppendByte(ParsePath("raw"), 0xFF)
	a.Append(ParsePath("list"), map[string]any{"k": uint64(9)})

	entries := a.Flatten()
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	want := []string{"b", "a.z", "a.m", "raw", "list.0.k"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestDeleteRoot(t *testing.T) {
	a := New()
	a.Put(ParsePath("x"), 1)
	a.Delete(nil)
	if _, ok := a.Get(ParsePath("x")); ok {
		t.Error("root delete should clear everything")
	}
}
