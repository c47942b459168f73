// Package msgs provides the L0 message schemas.
package msgs

// Every message is a single JSON object on its own line.
//
// Host to device, a command tagged by "command":
//
//	{"command":"set_motor","speed":200,"direction":1}
//
// Device to host, one of four shapes:
//
//	{"type":"sensor_data",...}  snapshot of readings and motor state
//	{"type":"status",...}       uptime and health
//	{"response":"..."}          acknowledgement of an actuator command
//	{"error":"..."}             malformed or unknown command
//
// A failed sensor reading is sent as -999, and -999 is read back as a
// failed reading.
//
// Producer: L1 host (commands), L0 firmware (responses)
// Consumer: L0 firmware (commands), L1 host (responses)
