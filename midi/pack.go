package midi

// UI notification words pack one event into 32 bits:
//
//	bits 31..24  zero
//	bits 23..16  status byte (type<<4 | channel, or the system status)
//	bits 15..8   data1 (Number; LSB for pitch bend / song position)
//	bits  7..0   data2 (Value; the only data byte for 2-byte messages)
//
// A zero word never encodes a valid event and is used as "empty".

// Pack encodes an event as a UI notification word. Internal events pack to 0.
func Pack(e Event) uint32 {
	status := e.Status()
	if status == 0 {
		return 0
	}
	return uint32(status)<<16 | uint32(e.Number&0x7F)<<8 | uint32(e.Value&0x7F)
}

// Unpack decodes a UI notification word. ok is false for the empty word or
// an undefined status.
func Unpack(w uint32) (Event, bool) {
	status := uint8(w >> 16)
	if status < 0x80 || statusSize(status) == 0 {
		return Event{}, false
	}
	num, val := uint8(w>>8)&0x7F, uint8(w)&0x7F
	if status >= 0xF0 {
		return Event{Type: Type(status), Number: num, Value: val}, true
	}
	return Event{Type: Type(status >> 4), Channel: status & 0x0F, Number: num, Value: val}, true
}
