package wire

import (
	"reflect"
	"testing"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
)

func TestSStringParse(t *testing.T) {
	m := SString("s", "name", automata.MachineTerminal())
	data := parse(t, m, []byte{0x03, 'a', 'b', 'c'})
	v, _ := data.Get(artifact.ParsePath("name"))
	if v != "abc" {
		t.Errorf("name = %v, want abc", v)
	}
}

func TestSStringEmpty(t *testing.T) {
	m := SString("s", "name", automata.MachineTerminal())
	data := parse(t, m, []byte{0x00})
	v, _ := data.Get(artifact.ParsePath("name"))
	if v != "" {
		t.Errorf("name = %v, want empty string", v)
	}
}

func TestStringParseEven(t *testing.T) {
	m := String("s", "name", automata.MachineTerminal())
	data := parse(t, m, []byte{0x02, 0x00, 'h', 'i'})
	v, _ := data.Get(artifact.ParsePath("name"))
	if v != "hi" {
		t.Errorf("name = %v, want hi", v)
	}
}

func TestStringParseOddConsumesPad(t *testing.T) {
	m := String("s", "name", automata.MachineTerminal())
	cur := automata.NewCursor([]byte{0x03, 0x00, 'a', 'b', 'c', 0x00, 0xEE})
	data := artifact.New()
	run := m.Start(cur, data, nil, true)
	for i := 0; i < 10000; i++ {
		st, err := run.Step()
		if err != nil {
			t.Fatalf("step error: %v", err)
		}
		if st.Kind == automata.StepDone {
			break
		}
	}
	v, _ := data.Get(artifact.ParsePath("name"))
	if v != "abc" {
		t.Errorf("name = %v, want abc", v)
	}
	if cur.Sent() != 6 {
		t.Errorf("Sent() = %d, want 6 (pad consumed, trailer left)", cur.Sent())
	}
}

func TestAppendSString(t *testing.T) {
	out, err := AppendSString(nil, "ok")
	if err != nil {
		t.Fatalf("AppendSString: %v", err)
	}
	if !reflect.DeepEqual(out, []byte{0x02, 'o', 'k'}) {
		t.Errorf("encoded = % X", out)
	}
}

func TestAppendStringPadsOdd(t *testing.T) {
	out, err := AppendString(nil, "abc")
	if err != nil {
		t.Fatalf("AppendString: %v", err)
	}
	want := []byte{0x03, 0x00, 'a', 'b', 'c', 0x00}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("encoded = % X, want % X", out, want)
	}
}
