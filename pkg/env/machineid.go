package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the ID identifying this host for the board
// service, falling back to the host name.
func MachineID() string {
	id, err := machineid.ProtectedID("balance")
	if err == nil {
		return id[:16]
	}
	glog.V(2).Infof("machine id unavailable: %v", err)
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "balance"
}
