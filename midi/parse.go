package midi

import "github.com/pkg/errors"

var (
	ErrEmpty       = errors.New("empty message")
	ErrNoStatus    = errors.New("missing status byte")
	ErrTruncated   = errors.New("truncated message")
	ErrBadData     = errors.New("data byte out of range")
	ErrUndefined   = errors.New("undefined status byte")
	ErrSizeInvalid = errors.New("message size does not match status")
)

// statusSize returns the wire size implied by a status byte; 0 = undefined,
// -1 = variable length (sysex).
func statusSize(status uint8) int {
	switch {
	case status < 0x80:
		return 0
	case status < 0xC0:
		return 3
	case status < 0xE0:
		return 2
	case status < 0xF0:
		return 3
	}
	switch status {
	case 0xF0:
		return -1
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	case 0xF6, 0xF7, 0xF8, 0xFA, 0xFB, 0xFC, 0xFE, 0xFF:
		return 1
	}
	return 0
}

// Parse decodes one complete wire message. Running status is not accepted.
// A note-on with velocity 0 is returned as NoteOff. For sysex only the
// boundary is decoded: the caller owns the payload bytes.
func Parse(b []byte) (Event, error) {
	if len(b) == 0 {
		return Event{}, ErrEmpty
	}
	status := b[0]
	if status < 0x80 {
		return Event{}, ErrNoStatus
	}
	size := statusSize(status)
	switch {
	case size == 0:
		return Event{}, ErrUndefined
	case size < 0:
		return Event{Type: SysExStart}, nil
	case len(b) < size:
		return Event{}, ErrTruncated
	case len(b) > size:
		return Event{}, ErrSizeInvalid
	}
	for _, d := range b[1:] {
		if d > 0x7F {
			return Event{}, ErrBadData
		}
	}

	if status >= 0xF0 {
		ev := Event{Type: Type(status)}
		switch ev.Type {
		case SongPosition:
			ev.Number, ev.Value = b[1], b[2]
		case SongSelect, TimeCodeQF:
			ev.Value = b[1]
		}
		return ev, nil
	}

	ev := Event{Type: Type(status >> 4), Channel: status & 0x0F}
	switch ev.Type {
	case ProgramChange, ChannelPressure:
		ev.Value = b[1]
	default:
		ev.Number, ev.Value = b[1], b[2]
	}
	if ev.Type == NoteOn && ev.Value == 0 {
		ev.Type = NoteOff
	}
	return ev, nil
}

// IsSysEx reports whether a raw frame starts a system exclusive message.
func IsSysEx(b []byte) bool {
	return len(b) > 0 && b[0] == 0xF0
}
