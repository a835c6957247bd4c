package slip

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"empty", nil, []byte{END}},
		{"plain", []byte{0x01, 0x02}, []byte{0x01, 0x02, END}},
		{"end", []byte{END}, []byte{ESC, ESCEnd, END}},
		{"esc", []byte{ESC}, []byte{ESC, ESCEsc, END}},
		{"esc then end", []byte{ESC, END}, []byte{ESC, ESCEsc, ESC, ESCEnd, END}},
		{"literal escape codes", []byte{ESCEnd, ESCEsc}, []byte{ESCEnd, ESCEsc, END}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(% x) = % x, want % x", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x04, 0x01, 0x02, 0x03},
		{END, END, ESC, ESC},
		{ESC, ESCEnd},
		{ESC, ESCEsc},
		{END, ESCEnd, ESC, ESCEsc, 0x00},
	}
	for _, p := range payloads {
		var d Decoder
		frames := d.Feed(Encode(p))
		if len(frames) != 1 {
			t.Fatalf("payload % x: got %d frames, want 1", p, len(frames))
		}
		if !bytes.Equal(frames[0], p) {
			t.Errorf("payload % x: got % x", p, frames[0])
		}
		if d.Pending() != 0 {
			t.Errorf("payload % x: pending %d", p, d.Pending())
		}
	}
}

func TestChunkIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 200; iter++ {
		b1 := randomPayload(rng)
		b2 := randomPayload(rng)
		stream := append(Encode(b1), Encode(b2)...)

		var d Decoder
		var got [][]byte
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			got = append(got, d.Feed(rest[:n])...)
			rest = rest[n:]
		}
		if len(got) != 2 {
			t.Fatalf("iter %d: got %d frames, want 2", iter, len(got))
		}
		if !bytes.Equal(got[0], b1) || !bytes.Equal(got[1], b2) {
			t.Fatalf("iter %d: got [% x] [% x], want [% x] [% x]", iter, got[0], got[1], b1, b2)
		}
	}
}

func TestFeedKeepsTail(t *testing.T) {
	buf, frames := Feed(nil, []byte{0x04, 0x01})
	if len(frames) != 0 {
		t.Fatalf("got %d frames before END", len(frames))
	}
	buf, frames = Feed(buf, []byte{ESC})
	if len(frames) != 0 || len(buf) != 3 {
		t.Fatalf("got frames=%d buf=% x", len(frames), buf)
	}
	buf, frames = Feed(buf, []byte{ESCEnd, END, END, 0x07})
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{0x04, 0x01, END}) {
		t.Errorf("frame 0 = % x", frames[0])
	}
	if len(frames[1]) != 0 {
		t.Errorf("keepalive frame not empty: % x", frames[1])
	}
	if !bytes.Equal(buf, []byte{0x07}) {
		t.Errorf("tail = % x, want 07", buf)
	}
}

func TestDecoderReset(t *testing.T) {
	var d Decoder
	d.Feed([]byte{0x01, 0x02})
	d.Reset()
	frames := d.Feed([]byte{0x03, END})
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x03}) {
		t.Errorf("after Reset got %v", frames)
	}
}

func randomPayload(rng *rand.Rand) []byte {
	alphabet := []byte{END, ESC, ESCEnd, ESCEsc, 0x00, 0x04, 0xFF}
	p := make([]byte, rng.Intn(24))
	for i := range p {
		if rng.Intn(2) == 0 {
			p[i] = alphabet[rng.Intn(len(alphabet))]
		} else {
			p[i] = byte(rng.Intn(256))
		}
	}
	return p
}
