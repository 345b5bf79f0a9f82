// Package wire encodes commands to and decodes reports from the balance board.
package wire

// The board speaks the remote controller HID protocol over two L2CAP
// channels. Every outbound frame starts with the set-report prefix
// followed by a command id, every inbound frame carries a channel
// specific header byte followed by a report id:
//
//   out: 0x52 CMD PAYLOAD...
//   in:  0xA1 RPT PAYLOAD...
//
// Multi-byte integers are big-endian. The load cells live on the
// expansion port and are reported through the button+expansion report
// once the expansion has been enabled and its calibration block read.
