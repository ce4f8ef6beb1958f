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
	"fmt"
	"io"
	"strings"
	"time"

	serial "github.com/hootrhino/goserial"
	bugst "go.bug.st/serial"
)

// Serial drivers accepted by SerialConfig.Driver.
const (
	DriverGoSerial = "goserial"
	DriverBugSt    = "bugst"
)

// SerialConfig describes the serial link. The instrument always uses 8 data
// bits, no parity and 1 stop bit.
type SerialConfig struct {
	Address  string
	BaudRate int
	Timeout  time.Duration
	Driver   string
}

// DefaultSerialConfig returns the factory settings of the instrument.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Address:  "COM3",
		BaudRate: 9600,
		Timeout:  1 * time.Second,
		Driver:   DriverGoSerial,
	}
}

// OpenSerialPort opens the port described by cfg with the selected driver.
func OpenSerialPort(cfg SerialConfig) (io.ReadWriteCloser, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("ad4826: serial address is empty")
	}
	if cfg.BaudRate <= 0 {
		return nil, fmt.Errorf("ad4826: invalid baud rate %d", cfg.BaudRate)
	}

	switch strings.ToLower(cfg.Driver) {
	case "", DriverGoSerial:
		port, err := serial.Open(&serial.Config{
			Address:  cfg.Address,
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("ad4826: failed to open %s: %w", cfg.Address, err)
		}
		return port, nil
	case DriverBugSt:
		port, err := bugst.Open(cfg.Address, &bugst.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			Parity:   bugst.NoParity,
			StopBits: bugst.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("ad4826: failed to open %s: %w", cfg.Address, err)
		}
		if cfg.Timeout > 0 {
			if err := port.SetReadTimeout(cfg.Timeout); err != nil {
				port.Close()
				return nil, fmt.Errorf("ad4826: failed to set read timeout: %w", err)
			}
		}
		return port, nil
	default:
		return nil, fmt.Errorf("ad4826: unknown serial driver %q", cfg.Driver)
	}
}

// DialSerial opens the port and wraps it in a SerialTransporter whose read
// timeout matches cfg.Timeout.
func DialSerial(cfg SerialConfig) (*SerialTransporter, error) {
	port, err := OpenSerialPort(cfg)
	if err != nil {
		return nil, err
	}
	return NewSerialTransporter(port, cfg.Timeout, cfg.Timeout), nil
}
