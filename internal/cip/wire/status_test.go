package wire

import (
	"reflect"
	"testing"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
)

func TestStatusSuccess(t *testing.T) {
	m := Status("st", "status", automata.MachineTerminal())
	data := parse(t, m, []byte{0x00, 0x00})
	code, _ := data.Int(artifact.ParsePath("status.code"))
	if code != StatusSuccess {
		t.Errorf("code = %d, want 0", code)
	}
	if _, ok := data.List(artifact.ParsePath("status.extended")); ok {
		t.Error("zero count should leave the extended list absent")
	}
	if _, ok := data.Get(artifact.ParsePath("status.extn__")); ok {
		t.Error("count staging key should be deleted")
	}
}

func TestStatusExtendedWords(t *testing.T) {
	m := Status("st", "status", automata.MachineTerminal())
	data := parse(t, m, []byte{0x04, 0x02, 0x34, 0x12, 0x01, 0x00})
	code, _ := data.Int(artifact.ParsePath("status.code"))
	if code != StatusPathSegmentError {
		t.Errorf("code = %d, want 4", code)
	}
	ext, _ := data.List(artifact.ParsePath("status.extended"))
	want := []any{uint64(0x1234), uint64(1)}
	if !reflect.DeepEqual(ext, want) {
		t.Errorf("extended = %v, want %v", ext, want)
	}
}

func TestAppendStatus(t *testing.T) {
	out, err := AppendStatus(nil, StatusServiceUnsupported, nil)
	if err != nil {
		t.Fatalf("AppendStatus: %v", err)
	}
	if !reflect.DeepEqual(out, []byte{0x08, 0x00}) {
		t.Errorf("encoded = % X", out)
	}

	out, err = AppendStatus(nil, StatusAttributeNotFound, []any{uint64(0x0001)})
	if err != nil {
		t.Fatalf("AppendStatus extended: %v", err)
	}
	if !reflect.DeepEqual(out, []byte{0x14, 0x01, 0x01, 0x00}) {
		t.Errorf("encoded = % X", out)
	}
}

func TestAppendStatusRejectsExtendedSuccess(t *testing.T) {
	if _, err := AppendStatus(nil, StatusSuccess, []any{uint64(1)}); err == nil {
		t.Fatal("expected error for extended words on success")
	}
}
