package klv

import "encoding/binary"

// item is one encoded tag/length/value triple awaiting assembly into a
// packet, used only by Encoder (test fixture construction).
type item struct {
	tag   byte
	value []byte
}

// Encoder builds MISB ST 0601 packets. It exists so that round-trip tests
// can construct fixtures without hand-assembling byte slices; production
// code only ever decodes.
type Encoder struct {
	items []item
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) put(tag byte, value []byte) *Encoder {
	e.items = append(e.items, item{tag: tag, value: value})
	return e
}

// Latitude encodes tag 13 at the declared scale (degrees * 1e7).
func (e *Encoder) Latitude(deg float64) *Encoder {
	return e.putInt32(tagLatitude, deg, 1e7)
}

// Longitude encodes tag 14 at the declared scale (degrees * 1e7).
func (e *Encoder) Longitude(deg float64) *Encoder {
	return e.putInt32(tagLongitude, deg, 1e7)
}

// Altitude encodes tag 15 at the declared scale (meters * 10).
func (e *Encoder) Altitude(m float64) *Encoder {
	return e.putUint16(tagAltitude, m, 10)
}

// Roll encodes tag 5.
func (e *Encoder) Roll(deg float64) *Encoder { return e.putInt16(tagRoll, deg, 100) }

// Pitch encodes tag 6.
func (e *Encoder) Pitch(deg float64) *Encoder { return e.putInt16(tagPitch, deg, 100) }

// Heading encodes tag 7.
func (e *Encoder) Heading(deg float64) *Encoder { return e.putUint16(tagHeading, deg, 100) }

// GimbalPitchAbs encodes tag 106.
func (e *Encoder) GimbalPitchAbs(deg float64) *Encoder {
	return e.putInt32(tagGimbalPitchAbs, deg, 1e6)
}

// GimbalYawAbs encodes tag 105.
func (e *Encoder) GimbalYawAbs(deg float64) *Encoder {
	return e.putInt32(tagGimbalYawAbs, deg, 1e6)
}

// SensorHFOV encodes tag 18.
func (e *Encoder) SensorHFOV(deg float64) *Encoder { return e.putUint16(tagSensorHFOV, deg, 100) }

// SensorVFOV encodes tag 19.
func (e *Encoder) SensorVFOV(deg float64) *Encoder { return e.putUint16(tagSensorVFOV, deg, 100) }

func (e *Encoder) putInt16(tag byte, v, scale float64) *Encoder {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(int16(v*scale)))
	return e.put(tag, b)
}

func (e *Encoder) putUint16(tag byte, v, scale float64) *Encoder {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v*scale))
	return e.put(tag, b)
}

func (e *Encoder) putInt32(tag byte, v, scale float64) *Encoder {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(int32(v*scale)))
	return e.put(tag, b)
}

// Bytes assembles the accumulated items into a full KLV packet: universal
// label, BER length, then each tag/length/value in insertion order.
func (e *Encoder) Bytes() []byte {
	var payload []byte
	for _, it := range e.items {
		payload = append(payload, it.tag, byte(len(it.value)))
		payload = append(payload, it.value...)
	}

	out := make([]byte, 0, 16+3+len(payload))
	out = append(out, MISB0601Key[:]...)
	out = append(out, berLength(len(payload))...)
	out = append(out, payload...)
	return out
}

// berLength encodes n using the short, 0x81, or 0x82 BER length forms,
// matching what Decode accepts.
func berLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	default:
		b := make([]byte, 3)
		b[0] = 0x82
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	}
}
