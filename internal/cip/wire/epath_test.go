package wire

import (
	"reflect"
	"testing"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
)

func pathSegments(t *testing.T, data *artifact.Artifact, ctx string) []any {
	t.Helper()
	segs, ok := data.List(artifact.ParsePath(ctx + ".segment"))
	if !ok {
		t.Fatalf("no segment list at %s", ctx)
	}
	return segs
}

func TestEPATHLogicalSegments(t *testing.T) {
	m := EPATH("path", "path", false, automata.MachineTerminal())
	// 2 words: class 1, instance 1.
	data := parse(t, m, []byte{0x02, 0x20, 0x01, 0x24, 0x01})

	segs := pathSegments(t, data, "path")
	want := []any{
		map[string]any{"class": uint64(1)},
		map[string]any{"instance": uint64(1)},
	}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("segments = %v, want %v", segs, want)
	}
	if _, ok := data.Get(artifact.ParsePath("path.size__")); ok {
		t.Error("size staging key should be deleted")
	}
}

func TestEPATHExtendedLogical(t *testing.T) {
	m := EPATH("path", "path", false, automata.MachineTerminal())
	// 16-bit instance 0x0301 and 32-bit element 0x00010000.
	data := parse(t, m, []byte{
		0x05,
		0x25, 0x00, 0x01, 0x03,
		0x2A, 0x00, 0x00, 0x00, 0x01, 0x00,
	})

	segs := pathSegments(t, data, "path")
	want := []any{
		map[string]any{"instance": uint64(0x0301)},
		map[string]any{"element": uint64(0x00010000)},
	}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("segments = %v, want %v", segs, want)
	}
}

func TestEPATHPaddedVariant(t *testing.T) {
	m := EPATH("path", "path", true, automata.MachineTerminal())
	data := parse(t, m, []byte{0x01, 0x00, 0x24, 0x05})
	segs := pathSegments(t, data, "path")
	if len(segs) != 1 {
		t.Fatalf("segments = %v", segs)
	}
	seg := segs[0].(map[string]any)
	if seg["instance"] != uint64(5) {
		t.Errorf("instance = %v, want 5", seg["instance"])
	}
}

func TestEPATHSymbolicOddLength(t *testing.T) {
	m := EPATH("path", "path", false, automata.MachineTerminal())
	// "abc" needs a pad byte for word alignment.
	data := parse(t, m, []byte{0x03, 0x91, 0x03, 'a', 'b', 'c', 0x00})
	segs := pathSegments(t, data, "path")
	want := []any{map[string]any{"symbolic": "abc"}}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("segments = %v, want %v", segs, want)
	}
}

func TestEPATHPortSegments(t *testing.T) {
	cases := []struct {
		name  string
		input []byte
		want  map[string]any
	}{
		{
			"numeric link",
			[]byte{0x01, 0x01, 0x00},
			map[string]any{"port": uint64(1), "link": uint64(0)},
		},
		{
			"extended port with string link",
			[]byte{0x03, 0x1F, 0x02, 0x12, 0x00, 'A', 'B'},
			map[string]any{"port": uint64(0x12), "link": "AB"},
		},
		{
			"string link odd length",
			[]byte{0x02, 0x11, 0x01, '9', 0x00},
			map[string]any{"port": uint64(1), "link": "9"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := EPATH("path", "path", false, automata.MachineTerminal())
			data := parse(t, m, tc.input)
			segs := pathSegments(t, data, "path")
			if len(segs) != 1 {
				t.Fatalf("segments = %v", segs)
			}
			if !reflect.DeepEqual(segs[0], tc.want) {
				t.Errorf("segment = %v, want %v", segs[0], tc.want)
			}
		})
	}
}

func TestEPATHEmptyPath(t *testing.T) {
	m := EPATH("path", "path", false, automata.MachineTerminal())
	data := parse(t, m, []byte{0x00})
	if _, ok := data.List(artifact.ParsePath("path.segment")); ok {
		t.Error("zero-size path should produce no segments")
	}
}

func TestAppendEPATHRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		segs []any
		want []byte
	}{
		{
			"instance",
			[]any{map[string]any{"instance": uint64(1)}},
			[]byte{0x01, 0x24, 0x01},
		},
		{
			"class and attribute",
			[]any{
				map[string]any{"class": uint64(0x01)},
				map[string]any{"attribute": uint64(0x0107)},
			},
			[]byte{0x03, 0x20, 0x01, 0x31, 0x00, 0x07, 0x01},
		},
		{
			"wide element",
			[]any{map[string]any{"element": uint64(0x00010000)}},
			[]byte{0x03, 0x2A, 0x00, 0x00, 0x00, 0x01, 0x00},
		},
		{
			"symbolic odd",
			[]any{map[string]any{"symbolic": "abc"}},
			[]byte{0x03, 0x91, 0x03, 'a', 'b', 'c', 0x00},
		},
		{
			"port with string link",
			[]any{map[string]any{"port": uint64(0x12), "link": "AB"}},
			[]byte{0x03, 0x1F, 0x02, 0x12, 0x00, 'A', 'B'},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := AppendEPATH(nil, tc.segs, false)
			if err != nil {
				t.Fatalf("AppendEPATH: %v", err)
			}
			if !reflect.DeepEqual(out, tc.want) {
				t.Errorf("encoded = % X, want % X", out, tc.want)
			}

			// The parse of the encoding recovers the segments.
			m := EPATH("path", "path", false, automata.MachineTerminal())
			data := parse(t, m, out)
			segs := pathSegments(t, data, "path")
			if !reflect.DeepEqual(segs, tc.segs) {
				t.Errorf("reparse = %v, want %v", segs, tc.segs)
			}
		})
	}
}

func TestAppendEPATHPadded(t *testing.T) {
	out, err := AppendEPATH(nil, []any{map[string]any{"instance": uint64(5)}}, true)
	if err != nil {
		t.Fatalf("AppendEPATH: %v", err)
	}
	want := []byte{0x01, 0x00, 0x24, 0x05}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("encoded = % X, want % X", out, want)
	}
}

func TestAppendEPATHRejectsUnknownSegment(t *testing.T) {
	if _, err := AppendEPATH(nil, []any{map[string]any{"bogus": 1}}, false); err == nil {
		t.Fatal("expected error for unrecognized segment keys")
	}
}

func TestEPATHPortZeroTagStalls(t *testing.T) {
	m := EPATH("path", "path", false, automata.MachineTerminal())
	// 1 word: tag byte 0x00 is not a valid segment; the run must neither
	// complete nor take the port branch.
	cur := automata.NewCursor([]byte{0x01, 0x00, 0x00})
	data := artifact.New()
	run := m.Start(cur, data, nil, true)
	for i := 0; i < 1000; i++ {
		st, err := run.Step()
		if err != nil {
			t.Fatalf("step error: %v", err)
		}
		if st.Kind == automata.StepDone {
			t.Fatal("port tag 0x00 should not parse")
		}
	}
	if _, ok := data.List(artifact.ParsePath("path.segment")); ok {
		t.Error("no segment should be committed")
	}
}

func TestAppendEPATHRejectsPortZero(t *testing.T) {
	segs := []any{map[string]any{"port": uint64(0), "link": uint64(1)}}
	if _, err := AppendEPATH(nil, segs, false); err == nil {
		t.Fatal("expected error for port 0")
	}
}
