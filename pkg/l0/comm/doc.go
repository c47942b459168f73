// Package comm provides L0 link support.
package comm

// The L0 link runs between the device firmware and the L1 host over a
// peer-to-peer byte channel (usually a serial port at 115200 8N1).
//
// Framing is one line per message in each direction, terminated by '\n'.
// There is no sequence number, acknowledgement or checksum: a line that
// overflows the receiver's buffer is truncated, and a corrupted line simply
// fails to parse on the other side.
//
// Producer: L0 firmware (responses, periodic broadcasts)
// Consumer: L1 host (commands)
