package opus

import (
	"testing"

	"github.com/MrWong99/chorale/pkg/audio"
)

func TestEncoder_EncodeSilence(t *testing.T) {
	t.Parallel()

	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	var f audio.Frame
	pkt, err := enc.Encode(&f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(pkt) == 0 {
		t.Error("Encode returned an empty packet")
	}
	if len(pkt) > MaxPacketSize {
		t.Errorf("packet size %d exceeds MaxPacketSize %d", len(pkt), MaxPacketSize)
	}
}

func TestEncoder_EncodeTone(t *testing.T) {
	t.Parallel()

	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	var f audio.Frame
	for i := range f {
		if (i/40)%2 == 0 {
			f[i] = 8000
		} else {
			f[i] = -8000
		}
	}
	for range 5 {
		pkt, err := enc.Encode(&f)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(pkt) == 0 || len(pkt) > MaxPacketSize {
			t.Fatalf("unexpected packet size %d", len(pkt))
		}
	}
}
