package klv

import (
	"encoding/binary"
	"math"
	"testing"
)

func floatEq(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestDecodeNotApplicable(t *testing.T) {
	d := NewDecoder()
	_, ok := d.Decode([]byte{0x00, 0x01, 0x02})
	if ok {
		t.Fatal("expected not-applicable for a non-KLV blob")
	}
}

func TestDecodeBadBERForm(t *testing.T) {
	d := NewDecoder()
	data := append(append([]byte{}, MISB0601Key[:]...), 0x83, 0x01, 0x02)
	_, ok := d.Decode(data)
	if ok {
		t.Fatal("expected not-applicable for unsupported BER length form")
	}
}

func TestRoundTrip(t *testing.T) {
	enc := NewEncoder().
		Latitude(40.12345670).
		Longitude(-74.98765430).
		Altitude(123.4)

	d := NewDecoder()
	rec, ok := d.Decode(enc.Bytes())
	if !ok {
		t.Fatal("expected packet to decode")
	}
	if rec.Latitude == nil || !floatEq(*rec.Latitude, 40.1234567, 1e-6) {
		t.Fatalf("latitude mismatch: %v", rec.Latitude)
	}
	if rec.Longitude == nil || !floatEq(*rec.Longitude, -74.9876543, 1e-6) {
		t.Fatalf("longitude mismatch: %v", rec.Longitude)
	}
	if rec.Altitude == nil || !floatEq(*rec.Altitude, 123.4, 1e-3) {
		t.Fatalf("altitude mismatch: %v", rec.Altitude)
	}
}

func TestTruncatedItemReturnsPartialRecord(t *testing.T) {
	enc := NewEncoder().Latitude(40.0)
	full := enc.Bytes()

	// Truncate the buffer mid-value of the only item so the declared
	// length runs past the end.
	truncated := full[:len(full)-2]

	d := NewDecoder()
	rec, ok := d.Decode(truncated)
	if !ok {
		t.Fatal("expected ok=true: truncation is a parse-stop, not rejection")
	}
	if rec.Latitude != nil {
		t.Fatal("expected latitude to be omitted for truncated item")
	}
}

func TestUnknownTagSkipped(t *testing.T) {
	// An unknown tag (200) between two known tags must not derail parsing
	// of the tag that follows it.
	enc := NewEncoder().Latitude(1.0)
	enc.put(200, []byte{0xAA, 0xBB, 0xCC})
	enc.Longitude(2.0)

	d := NewDecoder()
	rec, ok := d.Decode(enc.Bytes())
	if !ok {
		t.Fatal("expected packet to decode")
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		t.Fatal("expected both known tags decoded around the unknown one")
	}
}

func TestWrongLengthOmitsFieldButContinues(t *testing.T) {
	enc := NewEncoder()
	// Tag 13 (latitude) declared with the wrong length for its type.
	enc.put(tagLatitude, []byte{0x01, 0x02, 0x03})
	enc.Longitude(5.0)

	d := NewDecoder()
	rec, ok := d.Decode(enc.Bytes())
	if !ok {
		t.Fatal("expected packet to decode")
	}
	if rec.Latitude != nil {
		t.Fatal("expected latitude omitted due to wrong length")
	}
	if rec.Longitude == nil {
		t.Fatal("expected longitude to still decode after the bad item")
	}
}

func berLengthBoundaryCases(n int) []byte { return berLength(n) }

func TestBERLengthBoundaries(t *testing.T) {
	cases := []int{127, 128, 255, 256, 65535}
	for _, n := range cases {
		b := berLengthBoundaryCases(n)
		switch {
		case n < 128:
			if len(b) != 1 || int(b[0]) != n {
				t.Fatalf("n=%d: expected 1-byte short form, got %x", n, b)
			}
		case n <= 255:
			if len(b) != 2 || b[0] != 0x81 || int(b[1]) != n {
				t.Fatalf("n=%d: expected 0x81 form, got %x", n, b)
			}
		default:
			if len(b) != 3 || b[0] != 0x82 || int(binary.BigEndian.Uint16(b[1:])) != n {
				t.Fatalf("n=%d: expected 0x82 form, got %x", n, b)
			}
		}
	}
}
