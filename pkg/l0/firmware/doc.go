// Package firmware is the device runtime: a single Device context reads
// newline framed JSON commands from the serial link one byte at a time,
// drives the LED and the motor, answers with one JSON line per command and
// broadcasts sensor_data periodically.
//
// The device is driven by a framework.Loop. Within one iteration the input
// controller runs before the broadcast controller, and at most one command
// is dispatched.
package firmware
