package css

import (
	"errors"

	parse "github.com/tdewolff/parse/v2"
)

// ParseError is returned when source cannot be turned into a stylesheet.
type ParseError struct {
	Message string
	Loc     Location
	Err     error // underlying engine error, may be nil
}

func (e *ParseError) Error() string {
	return "parse error at " + e.Loc.String() + ": " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SerializeError is returned when a stylesheet cannot be written out.
type SerializeError struct {
	Message string
	Err     error
}

func (e *SerializeError) Error() string {
	if e.Err != nil {
		return "serialize error: " + e.Message + ": " + e.Err.Error()
	}
	return "serialize error: " + e.Message
}

func (e *SerializeError) Unwrap() error {
	return e.Err
}

// engineError returns grammar error reported by the engine, or nil if err is
// not a grammar error (end of input or read failure).
func engineError(err error) *parse.Error {
	var perr *parse.Error
	if errors.As(err, &perr) {
		return perr
	}
	return nil
}
