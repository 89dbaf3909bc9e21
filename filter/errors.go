package filter

import "github.com/pkg/errors"

// Configuration errors. Callers should match with errors.Is; returned values
// are wrapped with the offending argument.
var (
	ErrInvalidChannel = errors.New("invalid MIDI channel")
	ErrInvalidNumber  = errors.New("invalid MIDI number")
	ErrInvalidType    = errors.New("invalid event type")
	ErrInvalidRange   = errors.New("invalid range")
	ErrSelfClone      = errors.New("clone source and target are the same channel")
)

func checkChannel(ch uint8) error {
	if ch > 15 {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}
	return nil
}

func checkNumber(num uint8) error {
	if num > 127 {
		return errors.Wrapf(ErrInvalidNumber, "number %d", num)
	}
	return nil
}

func checkChanNum(ch, num uint8) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	return checkNumber(num)
}

// checkOptionalChannel accepts -1 (disabled) or 0..15.
func checkOptionalChannel(ch int) error {
	if ch < -1 || ch > 15 {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}
	return nil
}
