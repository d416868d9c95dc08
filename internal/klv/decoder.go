/*
NAME
  decoder.go

DESCRIPTION
  decoder.go provides a strict binary TLV parser for MISB ST 0601 local sets,
  decoding one KLV packet into a Record of scaled telemetry fields.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package klv decodes MISB ST 0601 Tactical UAS Local Set KLV packets into
// Records of optional telemetry fields.
package klv

import (
	"encoding/binary"
	"math"
)

// MISB0601Key is the 16-byte universal label that prefixes every MISB
// ST 0601 local set packet.
var MISB0601Key = [16]byte{
	0x06, 0x0E, 0x2B, 0x34, 0x02, 0x0B, 0x01, 0x01,
	0x0E, 0x01, 0x03, 0x01, 0x01, 0x00, 0x00, 0x00,
}

// Tag numbers for the fields this decoder understands. Unlisted tags are
// skipped.
const (
	tagTimestamp      = 2
	tagRoll           = 5
	tagPitch          = 6
	tagHeading        = 7
	tagLatitude       = 13
	tagLongitude      = 14
	tagAltitude       = 15
	tagSensorHFOV     = 18
	tagSensorVFOV     = 19
	tagGimbalRollRel  = 21
	tagGimbalPitchRel = 22
	tagGimbalYawRel   = 23
	tagSensorWidthMM  = 102
	tagSensorHeightMM = 103
	tagFocalLengthMM  = 104
	tagGimbalYawAbs   = 105
	tagGimbalPitchAbs = 106
	tagGimbalRollAbs  = 107
)

// Record is a MISB ST 0601 telemetry snapshot. Every field is a pointer so
// that absence can be distinguished from a legitimate zero value; a nil
// Telemetry* in Record means the packet did not carry that tag (or carried
// it with the wrong declared length).
type Record struct {
	TimestampUS *uint64 `json:"timestamp_us,omitempty"`

	Roll    *float64 `json:"roll,omitempty"`
	Pitch   *float64 `json:"pitch,omitempty"`
	Heading *float64 `json:"heading,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`

	SensorHFOV *float64 `json:"sensor_h_fov,omitempty"`
	SensorVFOV *float64 `json:"sensor_v_fov,omitempty"`

	GimbalRollRel  *float64 `json:"gimbal_roll_rel,omitempty"`
	GimbalPitchRel *float64 `json:"gimbal_pitch_rel,omitempty"`
	GimbalYawRel   *float64 `json:"gimbal_yaw_rel,omitempty"`

	GimbalRollAbs  *float64 `json:"gimbal_roll_abs,omitempty"`
	GimbalPitchAbs *float64 `json:"gimbal_pitch_abs,omitempty"`
	GimbalYawAbs   *float64 `json:"gimbal_yaw_abs,omitempty"`

	SensorWidthMM  *float64 `json:"sensor_width_mm,omitempty"`
	SensorHeightMM *float64 `json:"sensor_height_mm,omitempty"`
	FocalLengthMM  *float64 `json:"focal_length_mm,omitempty"`
}

// Decoder decodes MISB ST 0601 KLV packets. It holds no state between calls
// and is safe for concurrent use.
type Decoder struct{}

// NewDecoder returns a ready to use Decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// Decode parses one KLV packet and returns the telemetry it carries, or
// ok=false if data is not a MISB ST 0601 packet (wrong universal label or
// unsupported BER length form). Decode never returns an error: malformed
// items within an otherwise valid packet are skipped and parsing continues,
// per the MISB framing contract of this system.
func (d *Decoder) Decode(data []byte) (rec Record, ok bool) {
	if len(data) < 17 || [16]byte(data[:16]) != MISB0601Key {
		return Record{}, false
	}

	offset := 16
	lengthByte := data[offset]
	offset++

	var valueLength int
	switch {
	case lengthByte < 0x80:
		valueLength = int(lengthByte)
	case lengthByte == 0x81:
		if offset+1 > len(data) {
			return Record{}, false
		}
		valueLength = int(data[offset])
		offset++
	case lengthByte == 0x82:
		if offset+2 > len(data) {
			return Record{}, false
		}
		valueLength = int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
	default:
		// Unsupported BER length form (0x83+ or indefinite length).
		return Record{}, false
	}

	endOffset := offset + valueLength
	if endOffset > len(data) {
		endOffset = len(data)
	}

	for offset < endOffset {
		if offset+2 > len(data) {
			break
		}
		tag := data[offset]
		itemLen := int(data[offset+1])
		offset += 2

		if offset+itemLen > len(data) {
			// Declared length runs past the buffer: stop cleanly, keeping
			// whatever fields were already decoded.
			break
		}
		value := data[offset : offset+itemLen]
		offset += itemLen

		decodeField(&rec, tag, value)
	}

	return rec, true
}

// decodeField applies the per-tag width/sign/scale rules of the table in
// spec.md §4.1. A length mismatch on a known tag omits that field but never
// aborts parsing of the remaining items.
func decodeField(rec *Record, tag byte, value []byte) {
	switch tag {
	case tagTimestamp:
		if len(value) == 8 {
			v := binary.BigEndian.Uint64(value)
			rec.TimestampUS = &v
		}
	case tagRoll:
		if v, ok := scaledInt16(value, 100); ok {
			rec.Roll = &v
		}
	case tagPitch:
		if v, ok := scaledInt16(value, 100); ok {
			rec.Pitch = &v
		}
	case tagHeading:
		if v, ok := scaledUint16(value, 100); ok {
			rec.Heading = &v
		}
	case tagLatitude:
		if v, ok := scaledInt32(value, 1e7); ok {
			rec.Latitude = &v
		}
	case tagLongitude:
		if v, ok := scaledInt32(value, 1e7); ok {
			rec.Longitude = &v
		}
	case tagAltitude:
		if v, ok := scaledUint16(value, 10); ok {
			rec.Altitude = &v
		}
	case tagSensorHFOV:
		if v, ok := scaledUint16(value, 100); ok {
			rec.SensorHFOV = &v
		}
	case tagSensorVFOV:
		if v, ok := scaledUint16(value, 100); ok {
			rec.SensorVFOV = &v
		}
	case tagGimbalRollRel:
		if v, ok := scaledInt32(value, 1e6); ok {
			rec.GimbalRollRel = &v
		}
	case tagGimbalPitchRel:
		if v, ok := scaledInt32(value, 1e6); ok {
			rec.GimbalPitchRel = &v
		}
	case tagGimbalYawRel:
		if v, ok := scaledInt32(value, 1e6); ok {
			rec.GimbalYawRel = &v
		}
	case tagSensorWidthMM:
		if v, ok := float32BE(value); ok {
			rec.SensorWidthMM = &v
		}
	case tagSensorHeightMM:
		if v, ok := float32BE(value); ok {
			rec.SensorHeightMM = &v
		}
	case tagFocalLengthMM:
		if v, ok := float32BE(value); ok {
			rec.FocalLengthMM = &v
		}
	case tagGimbalYawAbs:
		if v, ok := scaledInt32(value, 1e6); ok {
			rec.GimbalYawAbs = &v
		}
	case tagGimbalPitchAbs:
		if v, ok := scaledInt32(value, 1e6); ok {
			rec.GimbalPitchAbs = &v
		}
	case tagGimbalRollAbs:
		if v, ok := scaledInt32(value, 1e6); ok {
			rec.GimbalRollAbs = &v
		}
	}
	// Unknown tags fall through here having already had their value bytes
	// consumed by the caller's offset advance.
}

func scaledInt16(b []byte, scale float64) (float64, bool) {
	if len(b) != 2 {
		return 0, false
	}
	return float64(int16(binary.BigEndian.Uint16(b))) / scale, true
}

func scaledUint16(b []byte, scale float64) (float64, bool) {
	if len(b) != 2 {
		return 0, false
	}
	return float64(binary.BigEndian.Uint16(b)) / scale, true
}

func scaledInt32(b []byte, scale float64) (float64, bool) {
	if len(b) != 4 {
		return 0, false
	}
	return float64(int32(binary.BigEndian.Uint32(b))) / scale, true
}

func float32BE(b []byte) (float64, bool) {
	if len(b) != 4 {
		return 0, false
	}
	bits := binary.BigEndian.Uint32(b)
	return float64(math.Float32frombits(bits)), true
}
