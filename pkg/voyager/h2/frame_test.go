package h2

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameHeader(t *testing.T) {
	tests := []struct {
		name string
		fh   FrameHeader
	}{
		{"DATA", FrameHeader{Length: 10, Type: FrameData, Flags: FlagEndStream, StreamID: 1}},
		{"HEADERS with priority", FrameHeader{Length: 20, Type: FrameHeaders, Flags: FlagEndHeaders | FlagPriority, StreamID: 3}},
		{"SETTINGS", FrameHeader{Length: 12, Type: FrameSettings, Flags: 0, StreamID: 0}},
		{"PING ack", FrameHeader{Length: 8, Type: FramePing, Flags: FlagAck, StreamID: 0}},
		{"max stream ID", FrameHeader{Length: 0, Type: FrameWindowUpdate, Flags: 0, StreamID: 0x7fffffff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeFrameHeader(&buf, tt.fh); err != nil {
				t.Fatalf("writeFrameHeader: %v", err)
			}
			got, err := readFrameHeader(&buf)
			if err != nil {
				t.Fatalf("readFrameHeader: %v", err)
			}
			if got != tt.fh {
				t.Fatalf("got %+v, want %+v", got, tt.fh)
			}
		})
	}
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	writeFrameHeader(&buf, FrameHeader{Length: MaxFrameSize*4 + 1, Type: FrameData})
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected an error for an oversized frame")
	}
}

func TestEncodeDecodeSettings(t *testing.T) {
	settings := []Setting{
		{ID: SettingEnablePush, Value: 0},
		{ID: SettingInitialWindowSize, Value: 65535},
		{ID: SettingMaxConcurrentStreams, Value: 100},
	}
	payload := EncodeSettings(settings)
	got, err := DecodeSettings(payload)
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if len(got) != len(settings) {
		t.Fatalf("got %d settings, want %d", len(got), len(settings))
	}
	for i, s := range settings {
		if got[i] != s {
			t.Fatalf("setting %d = %+v, want %+v", i, got[i], s)
		}
	}
}

func TestDecodeSettingsRejectsMisalignedPayload(t *testing.T) {
	if _, err := DecodeSettings([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatal("expected an error for a payload not a multiple of 6")
	}
}

func TestEncodeDecodeWindowUpdate(t *testing.T) {
	payload := EncodeWindowUpdate(12345)
	got, err := DecodeWindowUpdate(payload)
	if err != nil {
		t.Fatalf("DecodeWindowUpdate: %v", err)
	}
	if got != 12345 {
		t.Fatalf("got %d, want 12345", got)
	}
}

func TestDecodeGoAway(t *testing.T) {
	payload := append(EncodeWindowUpdate(0), EncodeRSTStream(ErrCodeProtocol)...)
	payload[0], payload[1], payload[2], payload[3] = 0, 0, 0, 7 // last-stream-id = 7
	last, code, debug, err := DecodeGoAway(payload)
	if err != nil {
		t.Fatalf("DecodeGoAway: %v", err)
	}
	if last != 7 {
		t.Fatalf("last stream id = %d, want 7", last)
	}
	if code != ErrCodeProtocol {
		t.Fatalf("code = %v, want %v", code, ErrCodeProtocol)
	}
	if len(debug) != 0 {
		t.Fatalf("unexpected debug data: %v", debug)
	}
}

func TestStripPadding(t *testing.T) {
	payload := []byte{0x03, 'h', 'i', '!', 0x00, 0x00, 0x00}
	got, err := stripPadding(FlagPadded, payload)
	if err != nil {
		t.Fatalf("stripPadding: %v", err)
	}
	if string(got) != "hi!" {
		t.Fatalf("got %q, want %q", got, "hi!")
	}

	unpadded := []byte{'h', 'i'}
	got, err = stripPadding(0, unpadded)
	if err != nil {
		t.Fatalf("stripPadding: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestStripPaddingRejectsOverlongPadLength(t *testing.T) {
	payload := []byte{0x05, 'h', 'i'}
	if _, err := stripPadding(FlagPadded, payload); err == nil {
		t.Fatal("expected an error when pad length exceeds the payload")
	}
}

func TestHeaderBlockFragmentStripsPriority(t *testing.T) {
	// 5-byte PRIORITY field (stream dependency + weight) followed by the
	// header block fragment.
	payload := append([]byte{0x00, 0x00, 0x00, 0x01, 0x10}, []byte("fragment")...)
	got, err := headerBlockFragment(FlagPriority, payload)
	if err != nil {
		t.Fatalf("headerBlockFragment: %v", err)
	}
	if string(got) != "fragment" {
		t.Fatalf("got %q, want %q", got, "fragment")
	}
}
