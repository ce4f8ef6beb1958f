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
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Command codes used by Device.
const (
	CmdGrossWeight     = "GROSS___" // Read gross weight
	CmdFillAmount      = "FF______" // Write fill (cutout) amount
	CmdStartCutout     = "CFW_____" // Start cutout
	CmdForcedDischarge = "FDIS____" // Forced discharge
)

// maxAmount is the first value that no longer fits in 8 integer digits.
const maxAmount = 1e8

// Device exposes the instrument's batching operations on top of a Client.
//
// ReadWeight, CutOutAmount and DischargeAll return errors that keep the
// failure kind (see OutcomeOf). CurrentWeight, CutOut and Discharge collapse
// every failure into a missing value or false.
type Device struct {
	client *Client
}

var _ BatchingApi = (*Device)(nil)

// NewDevice creates a Device that issues commands through c.
func NewDevice(c *Client) *Device {
	return &Device{client: c}
}

// Call sends an arbitrary command code.
func (d *Device) Call(unit, channel Code, cmd, text string) (*Response, error) {
	return d.client.Call(unit, channel, cmd, text)
}

// accepted runs one exchange and turns a NAK into *NakError.
func (d *Device) accepted(unit, channel Code, cmd, text string) (*Response, error) {
	resp, err := d.client.Call(unit, channel, cmd, text)
	if err != nil {
		return nil, err
	}
	if resp.IsNak() {
		return nil, &NakError{Command: resp.Command, Code: resp.ErrorCode}
	}
	return resp, nil
}

// ReadWeight reads the gross weight.
func (d *Device) ReadWeight(unit, channel Code) (float64, error) {
	resp, err := d.accepted(unit, channel, CmdGrossWeight, "")
	if err != nil {
		return 0, err
	}
	weight, err := ParseWeight(resp.Text)
	if err != nil {
		return 0, err
	}
	d.client.metrics.setWeight(unit, channel, weight)
	return weight, nil
}

// CutOutAmount writes the fill amount with FF______ and then starts the
// cutout with CFW_____. CFW_____ is never sent if the first step failed.
func (d *Device) CutOutAmount(unit, channel Code, amount float64) error {
	text, err := FormatAmount(amount)
	if err != nil {
		return err
	}
	log := d.client.logger.With(zap.Float64("amount", amount))

	if _, err := d.accepted(unit, channel, CmdFillAmount, text); err != nil {
		log.Warn("fill amount write failed", zap.Error(err))
		return fmt.Errorf("ad4826: write fill amount: %w", err)
	}
	if _, err := d.accepted(unit, channel, CmdStartCutout, ""); err != nil {
		log.Warn("start cutout failed", zap.Error(err))
		return fmt.Errorf("ad4826: start cutout: %w", err)
	}
	log.Info("cutout started")
	return nil
}

// DischargeAll sends the forced discharge command.
func (d *Device) DischargeAll(unit, channel Code) error {
	if _, err := d.accepted(unit, channel, CmdForcedDischarge, ""); err != nil {
		d.client.logger.Warn("forced discharge failed", zap.Error(err))
		return fmt.Errorf("ad4826: forced discharge: %w", err)
	}
	d.client.logger.Info("forced discharge accepted")
	return nil
}

// CurrentWeight is ReadWeight with every failure reported as ok == false.
func (d *Device) CurrentWeight(unit, channel Code) (weight float64, ok bool) {
	w, err := d.ReadWeight(unit, channel)
	if err != nil {
		return 0, false
	}
	return w, true
}

// CutOut is CutOutAmount reporting only whether the instrument accepted both
// steps.
func (d *Device) CutOut(unit, channel Code, amount float64) bool {
	return d.CutOutAmount(unit, channel, amount) == nil
}

// Discharge is DischargeAll reporting only acceptance.
func (d *Device) Discharge(unit, channel Code) bool {
	return d.DischargeAll(unit, channel) == nil
}

// ParseWeight parses the GROSS___ text as a decimal number. Surrounding
// blanks and single underscores between digits are allowed, hexadecimal is
// not, and magnitudes beyond float64 become ±Inf.
func ParseWeight(text string) (float64, error) {
	s := strings.TrimSpace(text)
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeight, text)
	}
	if strings.Contains(s, "_") {
		var ok bool
		if s, ok = stripDigitSeparators(s); !ok {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWeight, text)
		}
	}
	weight, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return weight, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeight, text)
	}
	return weight, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// stripDigitSeparators removes underscores that sit between two digits.
func stripDigitSeparators(s string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
			return "", false
		}
	}
	return b.String(), true
}

// FormatAmount renders amount as the FF______ text argument: sign, 8 integer
// digits, point, 3 decimals. 120 becomes "+00000120.000".
func FormatAmount(amount float64) (string, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "", fmt.Errorf("%w: %v", ErrAmountOutOfRange, amount)
	}
	if amount == 0 {
		amount = 0 // drop the sign of negative zero
	}
	text := fmt.Sprintf("%+013.3f", amount)
	if len(text) != 13 || math.Abs(amount) >= maxAmount {
		return "", fmt.Errorf("%w: %v", ErrAmountOutOfRange, amount)
	}
	return text, nil
}
