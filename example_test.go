package ad4826_test

import (
	"bytes"
	"fmt"
	"io"

	ad4826 "github.com/hootrhino/goad4826"
)

// scriptedPort answers each written frame with the reply registered for its
// command code.
type scriptedPort struct {
	replies map[string]string
	pending bytes.Buffer
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	cmd := string(b[5:13])
	if reply, ok := p.replies[cmd]; ok {
		p.pending.WriteString(reply)
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if p.pending.Len() == 0 {
		return 0, io.EOF
	}
	return p.pending.Read(b)
}

func (p *scriptedPort) Close() error { return nil }

func Example() {
	port := &scriptedPort{replies: map[string]string{
		"GROSS___": "\x020000GROSS___+00000012.340\r\n",
		"FF______": "\x060000FF______\r\n",
		"CFW_____": "\x060000CFW_____\r\n",
		"FDIS____": "\x150000FDIS____E1\r\n",
	}}
	client := ad4826.NewClient(ad4826.NewSerialTransporter(port, 0, 0))
	defer client.Close()
	dev := ad4826.NewDevice(client)
	unit, channel := ad4826.MustCode("00"), ad4826.MustCode("00")

	weight, ok := dev.CurrentWeight(unit, channel)
	fmt.Println("Current Weight:", weight, ok)
	fmt.Println("Cut out success?", dev.CutOut(unit, channel, 120.0))

	err := dev.DischargeAll(unit, channel)
	fmt.Println("Discharge all:", ad4826.OutcomeOf(err), err)
	// Output:
	// Current Weight: 12.34 true
	// Cut out success? true
	// Discharge all: rejected ad4826: forced discharge: ad4826: command FDIS____ rejected with error code "E1"
}

func ExampleFormatAmount() {
	text, _ := ad4826.FormatAmount(120)
	fmt.Println(text)
	text, _ = ad4826.FormatAmount(0.5)
	fmt.Println(text)
	// Output:
	// +00000120.000
	// +00000000.500
}
