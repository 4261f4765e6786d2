package enip

import (
	"errors"
	"testing"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/wire"
)

func testDecoder() *Decoder {
	return NewDecoder(MessageMachine(DefaultRegistry(wire.DefaultRegistry())))
}

func stepComplete(t *testing.T, dec *Decoder) *artifact.Artifact {
	t.Helper()
	res, err := dec.Step()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if res != Complete {
		t.Fatalf("result = %v, want Complete", res)
	}
	return dec.Artifact()
}

func TestEncodeHeaderLayout(t *testing.T) {
	raw, err := Encode(Encapsulation{
		Command:       CommandRegisterSession,
		SessionHandle: 0x01020304,
		Status:        0,
		SenderContext: [8]byte{'c', 't', 'x'},
		Data:          []byte{0x01, 0x00, 0x00, 0x00},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(raw) != HeaderSize+4 {
		t.Fatalf("length = %d, want %d", len(raw), HeaderSize+4)
	}
	if raw[0] != 0x65 || raw[1] != 0x00 {
		t.Errorf("command bytes = % X, want 65 00", raw[0:2])
	}
	if raw[2] != 0x04 || raw[3] != 0x00 {
		t.Errorf("length bytes = % X, want 04 00", raw[2:4])
	}
	if raw[4] != 0x04 || raw[7] != 0x01 {
		t.Errorf("session bytes = % X, want little endian", raw[4:8])
	}
	if raw[12] != 'c' {
		t.Errorf("sender context = % X", raw[12:20])
	}
}

func TestDecodeRegisterSessionSplitFeeds(t *testing.T) {
	sender := [8]byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'}
	raw, err := BuildRegisterSession(sender)
	if err != nil {
		t.Fatalf("BuildRegisterSession: %v", err)
	}

	// Feed in three uneven pieces; the decoder suspends between them.
	dec := testDecoder()
	pieces := [][]byte{raw[:5], raw[5:17], raw[17:]}
	for i, p := range pieces {
		res, err := dec.Step()
		if err != nil {
			t.Fatalf("step before piece %d: %v", i, err)
		}
		if res != NeedInput {
			t.Fatalf("result before piece %d = %v, want NeedInput", i, res)
		}
		dec.Feed(p)
	}

	art := stepComplete(t, dec)
	cmd, _ := art.Int(artifact.ParsePath("command"))
	if uint16(cmd) != CommandRegisterSession {
		t.Errorf("command = 0x%04X, want 0x0065", cmd)
	}
	version, _ := art.Int(artifact.ParsePath("register.protocol_version"))
	if version != 1 {
		t.Errorf("protocol_version = %d, want 1", version)
	}
	ctx, _ := art.Bytes(artifact.ParsePath("sender_context"))
	if string(ctx) != "abcdefgh" {
		t.Errorf("sender_context = %q", ctx)
	}
	if dec.Consumed() != len(raw) {
		t.Errorf("Consumed = %d, want %d", dec.Consumed(), len(raw))
	}
}

func TestDecodeBackToBackMessages(t *testing.T) {
	first, err := BuildRegisterSession([8]byte{1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := BuildUnregisterSession(9, [8]byte{2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	dec := testDecoder()
	dec.Feed(append(append([]byte(nil), first...), second...))

	art := stepComplete(t, dec)
	cmd, _ := art.Int(artifact.ParsePath("command"))
	if uint16(cmd) != CommandRegisterSession {
		t.Errorf("first command = 0x%04X", cmd)
	}

	dec.Reset()
	art = stepComplete(t, dec)
	cmd, _ = art.Int(artifact.ParsePath("command"))
	if uint16(cmd) != CommandUnregisterSession {
		t.Errorf("second command = 0x%04X", cmd)
	}
	session, _ := art.Int(artifact.ParsePath("session_handle"))
	if session != 9 {
		t.Errorf("session_handle = %d, want 9", session)
	}
}

func TestDecodeSendRRDataRequest(t *testing.T) {
	items := []any{
		map[string]any{"type_id": uint64(wire.ItemNull)},
		map[string]any{
			"type_id": uint64(wire.ItemUnconnectedData),
			"unconnected_send": map[string]any{
				"service": uint64(0x0E),
				"path": map[string]any{
					"segment": []any{
						map[string]any{"class": uint64(1)},
						map[string]any{"instance": uint64(1)},
						map[string]any{"attribute": uint64(7)},
					},
				},
			},
		},
	}
	raw, err := BuildSendRRData(0x55AA, [8]byte{}, 10, items)
	if err != nil {
		t.Fatalf("BuildSendRRData: %v", err)
	}

	dec := testDecoder()
	dec.Feed(raw)
	art := stepComplete(t, dec)

	session, _ := art.Int(artifact.ParsePath("session_handle"))
	if session != 0x55AA {
		t.Errorf("session_handle = 0x%X", session)
	}
	timeout, _ := art.Int(artifact.ParsePath("send_rr_data.timeout"))
	if timeout != 10 {
		t.Errorf("timeout = %d, want 10", timeout)
	}
	got, ok := art.List(artifact.ParsePath("send_rr_data.CPF.item"))
	if !ok || len(got) != 2 {
		t.Fatalf("items = %v", got)
	}
	ucs := got[1].(map[string]any)["unconnected_send"].(map[string]any)
	segs := ucs["path"].(map[string]any)["segment"].([]any)
	if len(segs) != 3 {
		t.Fatalf("segments = %v", segs)
	}
	if segs[2].(map[string]any)["attribute"] != uint64(7) {
		t.Errorf("attribute segment = %v", segs[2])
	}
}

func TestDecodeListServicesReply(t *testing.T) {
	raw, err := BuildListServicesReply(3, [8]byte{}, "Communications", 0x0120)
	if err != nil {
		t.Fatalf("BuildListServicesReply: %v", err)
	}

	dec := testDecoder()
	dec.Feed(raw)
	art := stepComplete(t, dec)

	items, ok := art.List(artifact.ParsePath("list_services.CPF.item"))
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v", items)
	}
	cs := items[0].(map[string]any)["communications_service"].(map[string]any)
	if cs["service_name"] != "Communications" {
		t.Errorf("service_name = %v", cs["service_name"])
	}
	if cs["capability_flags"] != uint64(0x0120) {
		t.Errorf("capability_flags = %v", cs["capability_flags"])
	}
}

func TestDecodeNOP(t *testing.T) {
	raw, err := Encode(Encapsulation{Command: CommandNOP, Data: []byte{0xFF, 0xFF}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec := testDecoder()
	dec.Feed(raw)
	art := stepComplete(t, dec)
	cmd, _ := art.Int(artifact.ParsePath("command"))
	if uint16(cmd) != CommandNOP {
		t.Errorf("command = 0x%04X", cmd)
	}
	if dec.Consumed() != len(raw) {
		t.Errorf("Consumed = %d, want %d", dec.Consumed(), len(raw))
	}
}

func TestDecodeNeedInputMidHeader(t *testing.T) {
	dec := testDecoder()
	dec.Feed([]byte{0x65, 0x00, 0x04, 0x00, 0x00})
	res, err := dec.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res != NeedInput {
		t.Errorf("result = %v, want NeedInput", res)
	}
}

func TestDecodePoisonPropagates(t *testing.T) {
	dec := testDecoder()
	dec.Feed([]byte{0x65, 0x00})
	dec.Poison(struct{}{})
	_, err := dec.Step()
	var perr *automata.PoisonError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PoisonError", err)
	}
}

func TestDecodeRejectsStarvedItemBudget(t *testing.T) {
	// An unconnected item whose declared length cuts off its own path: the
	// grammar stalls inside the budget while later stream bytes sit buffered.
	var data []byte
	data = append(data, 0, 0, 0, 0) // interface handle
	data = append(data, 0, 0)       // timeout
	data = append(data, 0x01, 0x00) // one item
	data = append(data, 0xB2, 0x00) // unconnected data item
	data = append(data, 0x02, 0x00) // length 2
	data = append(data, 0x0E, 0x01) // service + path size, path cut off
	raw, err := Encode(Encapsulation{Command: CommandSendRRData, Data: data})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw = append(raw, 0x65) // next message already arriving

	dec := testDecoder()
	dec.Feed(raw)
	if _, err := dec.Step(); err != ErrRejected {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestDecoderDiscardAndReset(t *testing.T) {
	dec := testDecoder()
	dec.Feed([]byte{1, 2, 3, 4, 5})
	n, err := dec.Discard(3)
	if err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if n != 3 {
		t.Errorf("Discard = %d, want 3", n)
	}
	n, err = dec.Discard(10)
	if err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if n != 2 {
		t.Errorf("Discard past end = %d, want 2", n)
	}

	dec.Reset()
	if dec.Consumed() != 0 {
		t.Errorf("Consumed after Reset = %d, want 0", dec.Consumed())
	}
}

func TestCommandName(t *testing.T) {
	if got := CommandName(CommandSendRRData); got != "SendRRData" {
		t.Errorf("CommandName = %q", got)
	}
	if got := CommandName(0x1234); got != "Unknown(0x1234)" {
		t.Errorf("CommandName unknown = %q", got)
	}
}
