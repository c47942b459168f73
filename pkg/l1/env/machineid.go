package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// DefaultDeviceID is used when the machine can't be identified.
const DefaultDeviceID = "motorsense"

// MachineID returns an ID of this host, scoped to this application so the
// raw machine ID isn't exposed in topics.
func MachineID() string {
	id, err := machineid.ProtectedID(DefaultDeviceID)
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return DefaultDeviceID
	}
	return id[:16]
}
