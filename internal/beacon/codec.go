// Package beacon decodes the short-range radio advertisements broadcast by
// classroom transmitters and smooths their noisy signal readings.
package beacon

import (
	"encoding/binary"
)

// CompanyID is the manufacturer identifier carried in the advertisement's
// manufacturer-specific data block.
const CompanyID uint16 = 0x09D7

// Advertisement data structure types.
const (
	adTypeManufacturerData = 0xFF
)

// Payload layout, in bytes: version(1) classID(2) token(4) facultyID(2)
// flags(1) signature(6).
const payloadLength = 16

// Record is a decoded beacon advertisement.
type Record struct {
	Version      uint8
	ClassID      uint16
	SessionToken uint32
	FacultyID    uint16
	Flags        uint8
	Signature    [6]byte
}

// Decode walks the length-prefixed advertisement structures in raw and
// returns the decoded record from the first manufacturer-specific data block
// carrying our company identifier. Returns nil if no such block exists or
// the payload is malformed. Decode is safe on arbitrary input.
func Decode(raw []byte) *Record {
	i := 0
	for i < len(raw) {
		length := int(raw[i])
		i++
		if length == 0 || i+length > len(raw) {
			return nil
		}

		adType := raw[i]
		data := raw[i+1 : i+length]
		i += length

		if adType != adTypeManufacturerData {
			continue
		}
		if rec := decodePayload(data); rec != nil {
			return rec
		}
	}
	return nil
}

// decodePayload parses the manufacturer data: a little-endian company
// identifier followed by the fixed-layout beacon payload. Every field read
// validates remaining length before consuming.
func decodePayload(data []byte) *Record {
	if len(data) < 2 {
		return nil
	}
	if binary.LittleEndian.Uint16(data[:2]) != CompanyID {
		return nil
	}

	payload := data[2:]
	if len(payload) < payloadLength {
		return nil
	}

	rec := &Record{
		Version:      payload[0],
		ClassID:      binary.BigEndian.Uint16(payload[1:3]),
		SessionToken: binary.BigEndian.Uint32(payload[3:7]),
		FacultyID:    binary.BigEndian.Uint16(payload[7:9]),
		Flags:        payload[9],
	}
	copy(rec.Signature[:], payload[10:16])
	return rec
}

// Encode produces a complete advertisement containing a single
// manufacturer-specific data structure for the record.
func Encode(rec Record) []byte {
	// length byte covers the type byte, company id, and payload
	buf := make([]byte, 0, 2+2+payloadLength)
	buf = append(buf, byte(1+2+payloadLength), adTypeManufacturerData)
	buf = binary.LittleEndian.AppendUint16(buf, CompanyID)
	buf = append(buf, rec.Version)
	buf = binary.BigEndian.AppendUint16(buf, rec.ClassID)
	buf = binary.BigEndian.AppendUint32(buf, rec.SessionToken)
	buf = binary.BigEndian.AppendUint16(buf, rec.FacultyID)
	buf = append(buf, rec.Flags)
	buf = append(buf, rec.Signature[:]...)
	return buf
}
