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

// BatchingApi defines the high-level operations of a weighing/batching
// controller.
type BatchingApi interface {
	// ReadWeight reads the gross weight
	ReadWeight(unit, channel Code) (float64, error)
	// CutOutAmount programs a fill amount and starts a cutout
	CutOutAmount(unit, channel Code, amount float64) error
	// DischargeAll forces a discharge
	DischargeAll(unit, channel Code) error
	// Call sends any command code
	Call(unit, channel Code, cmd, text string) (*Response, error)
}
