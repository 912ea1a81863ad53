package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xFF, 0x7F, 0x00, 0x80, 0x34, 0x12}
	wav := BuildWAV(pcm, SampleRate, 1, 16)

	got, sr, ch, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if sr != SampleRate || ch != 1 {
		t.Fatalf("got sr=%d ch=%d", sr, ch)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("payload mismatch: got %x want %x", got, pcm)
	}
}

func TestParseWAVSkipsExtraChunks(t *testing.T) {
	// hand-build a file with a LIST chunk between fmt and data
	pcm := []byte{0x00, 0x01, 0x00, 0x02}
	base := BuildWAV(pcm, 8000, 2, 16)

	var buf bytes.Buffer
	buf.Write(base[:12+8+16]) // RIFF header + fmt chunk
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	buf.Write([]byte{'I', 'N', 'F', 'O', 0})
	buf.WriteByte(0) // pad byte for word alignment
	buf.Write(base[12+8+16:])

	got, sr, ch, err := ParseWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseWAV with LIST chunk: %v", err)
	}
	if sr != 8000 || ch != 2 {
		t.Fatalf("got sr=%d ch=%d", sr, ch)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("payload mismatch: got %x", got)
	}
}

func TestParseWAVRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"wrong magic", []byte("GIF89aXXXXXXXXXXXXXX")},
		{"header only", []byte("RIFF\x04\x00\x00\x00WAVE")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, _, err := ParseWAV(tc.b); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseWAVRejectsTruncatedData(t *testing.T) {
	wav := BuildWAV(make([]byte, 100), SampleRate, 1, 16)
	if _, _, _, err := ParseWAV(wav[:len(wav)-10]); err == nil {
		t.Fatal("expected error for truncated data chunk")
	}
}

func TestParseWAVRejectsNonPCM(t *testing.T) {
	wav := BuildWAV([]byte{0, 0}, SampleRate, 1, 16)
	// flip the format tag to 3 (IEEE float)
	wav[20] = 3
	if _, _, _, err := ParseWAV(wav); err == nil {
		t.Fatal("expected error for non-PCM format")
	}
}

func TestClipFromPCM16RoundTrip(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xFF, 0x7F, 0x01, 0x80}
	clip := ClipFromPCM16(pcm)
	if clip.Len() != 3 {
		t.Fatalf("len: got %d want 3", clip.Len())
	}
	back := clip.PCM16()
	if !bytes.Equal(back, pcm) {
		t.Fatalf("roundtrip mismatch: got %x want %x", back, pcm)
	}
}
