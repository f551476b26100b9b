package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildFrame(t *testing.T) {
	got, err := BuildFrame(7, CmdBattery, TypeRequest, []byte{0, 0})
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	want := []byte{0xFA, 0xFC, 0xFD, 66, 1, 7, 2, 0, 0, 0, 0xFB}
	if !bytes.Equal(got, want) {
		t.Errorf("BuildFrame() = % x, want % x", got, want)
	}
}

func TestBuildFrameEmptyPayload(t *testing.T) {
	got, err := BuildFrame(0, CmdFirmware, TypeRequest, nil)
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	if len(got) != MinFrameLen {
		t.Errorf("len = %d, want %d", len(got), MinFrameLen)
	}
	if got[6] != 0 || got[7] != 0 || got[8] != EndByte {
		t.Errorf("BuildFrame() = % x", got)
	}
}

func TestBuildFrameTooLarge(t *testing.T) {
	_, err := BuildFrame(0, CmdSetConfig, TypeRequest, make([]byte, 256))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("BuildFrame(256 bytes) error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{1},
		{0, 0},
		bytes.Repeat([]byte{0xAB}, 29),
		bytes.Repeat([]byte{0xFB}, MaxPayloadLen),
	}
	for _, seq := range []byte{0, 1, 128, 255} {
		for _, payload := range payloads {
			raw, err := BuildFrame(seq, CmdUpdate, TypeResponse, payload)
			if err != nil {
				t.Fatalf("BuildFrame() error = %v", err)
			}
			f, err := ParseFrame(raw)
			if err != nil {
				t.Fatalf("ParseFrame(BuildFrame(seq=%d, len=%d)) error = %v", seq, len(payload), err)
			}
			if f.Cmd != CmdUpdate || f.Type != TypeResponse || f.Seq != seq {
				t.Errorf("header = %s, want cmd=%d type=%d seq=%d", f, CmdUpdate, TypeResponse, seq)
			}
			if len(f.Data) != len(payload) || !bytes.Equal(f.Data, payload) {
				t.Errorf("Data = % x, want % x", f.Data, payload)
			}
		}
	}
}

func TestParseFrameMalformed(t *testing.T) {
	valid, err := BuildFrame(3, CmdBattery, TypeResponse, []byte{0x01, 0x2C, 50})
	if err != nil {
		t.Fatal(err)
	}
	mutate := func(i int, v byte) []byte {
		b := append([]byte(nil), valid...)
		b[i] = v
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", valid[:MinFrameLen-1]},
		{"bad header 0", mutate(0, 0x00)},
		{"bad header 1", mutate(1, 0xFA)},
		{"bad header 2", mutate(2, 0xFC)},
		{"bad end byte", mutate(len(valid)-1, 0xFA)},
		{"length too long", mutate(6, 4)},
		{"length too short", mutate(6, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.data)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("ParseFrame() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestParseFrameCopiesData(t *testing.T) {
	raw, _ := BuildFrame(1, CmdSync, TypeResponse, []byte{1})
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	raw[8] = 9
	if f.Data[0] != 1 {
		t.Error("Frame.Data aliases the input buffer")
	}
}
