package coordinator

import (
	"reflect"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/climate"
)

// Snapshot is the device list from the most recent successful refresh,
// plus any optimistic patches applied since. It is read-only: the
// coordinator never mutates a published snapshot in place.
type Snapshot struct {
	Devices   []climate.DeviceState
	FetchedAt time.Time

	// unavailable marks devices whose last control command failed.
	// Cleared by the next successful refresh.
	unavailable map[int64]bool
}

// Device returns a copy of the device with the given id.
func (s Snapshot) Device(id int64) (climate.DeviceState, bool) {
	if i := s.index(id); i >= 0 {
		return s.Devices[i].Clone(), true
	}
	return climate.DeviceState{}, false
}

// Available reports whether the device is known, online, and not marked
// unavailable by a failed command.
func (s Snapshot) Available(id int64) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	return s.Devices[i].Online && !s.unavailable[id]
}

// CommandFailed reports whether the device's last control command failed
// since the last refresh.
func (s Snapshot) CommandFailed(id int64) bool {
	return s.unavailable[id]
}

func (s Snapshot) index(id int64) int {
	for i := range s.Devices {
		if s.Devices[i].ID == id {
			return i
		}
	}
	return -1
}

// withDevice returns a new snapshot with one device replaced. The device
// slice is copied; other entries are shared.
func (s Snapshot) withDevice(i int, d climate.DeviceState) Snapshot {
	devices := make([]climate.DeviceState, len(s.Devices))
	copy(devices, s.Devices)
	devices[i] = d
	s.Devices = devices
	return s
}

// withAvailability returns a new snapshot with the overlay entry for id set
// or cleared.
func (s Snapshot) withAvailability(id int64, failed bool) Snapshot {
	overlay := make(map[int64]bool, len(s.unavailable)+1)
	for k, v := range s.unavailable {
		overlay[k] = v
	}
	if failed {
		overlay[id] = true
	} else {
		delete(overlay, id)
	}
	s.unavailable = overlay
	return s
}

func devicesEqual(a, b []climate.DeviceState) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
