// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package ad4826

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCommandCode = errors.New("ad4826: invalid command code")
	ErrInvalidCode        = errors.New("ad4826: invalid unit/channel code")
	ErrInvalidText        = errors.New("ad4826: invalid text field")
	ErrTooShort           = errors.New("ad4826: response too short")
	ErrFrameTooLarge      = errors.New("ad4826: response exceeds max frame size")
	ErrNoResponse         = errors.New("ad4826: no response")
	ErrInvalidWeight      = errors.New("ad4826: weight is not a number")
	ErrAmountOutOfRange   = errors.New("ad4826: amount out of range")
)

// NakError is returned when the instrument rejected a command.
type NakError struct {
	Command string // Command code echoed by the instrument
	Code    string // 2-character error code
}

func (e *NakError) Error() string {
	return fmt.Sprintf("ad4826: command %s rejected with error code %q", e.Command, e.Code)
}

// MalformedResponseError carries the raw bytes of a response that could not
// be decoded.
type MalformedResponseError struct {
	Raw []byte
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("ad4826: malformed response % X: %v", e.Raw, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Outcome classifies the result of a device operation.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeRejected
	OutcomeNoResponse
	OutcomeMalformed
	OutcomeInvalidRequest
	OutcomeTransportFailure
)

var outcomeNames = map[Outcome]string{
	OutcomeAccepted:         "accepted",
	OutcomeRejected:         "rejected",
	OutcomeNoResponse:       "no_response",
	OutcomeMalformed:        "malformed",
	OutcomeInvalidRequest:   "invalid_request",
	OutcomeTransportFailure: "transport_failure",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// OutcomeOf maps an error returned by Client or Device to its Outcome.
// A nil error is OutcomeAccepted.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeAccepted
	}
	var nak *NakError
	var malformed *MalformedResponseError
	switch {
	case errors.As(err, &nak):
		return OutcomeRejected
	case errors.Is(err, ErrNoResponse):
		return OutcomeNoResponse
	case errors.As(err, &malformed), errors.Is(err, ErrInvalidWeight):
		return OutcomeMalformed
	case errors.Is(err, ErrInvalidCommandCode),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrInvalidText),
		errors.Is(err, ErrAmountOutOfRange):
		return OutcomeInvalidRequest
	default:
		return OutcomeTransportFailure
	}
}
