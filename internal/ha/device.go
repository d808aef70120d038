// SPDX-License-Identifier: MIT

package ha

// Device identifies the physical board in Home Assistant. All entities
// published with the same device info are grouped under one device page.
type Device struct {
	Name         string
	ID           string
	Manufacturer string
	Model        string
	SWVersion    string
}

// deviceInfo is the discovery payload fragment for the device.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

func (d Device) info() deviceInfo {
	return deviceInfo{
		Identifiers:  []string{d.ID},
		Name:         d.Name,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		SWVersion:    d.SWVersion,
	}
}

// AvailabilityTopic returns the shared availability topic for the device.
// It lives outside the discovery prefix so Home Assistant never mistakes it
// for a discovery payload.
func AvailabilityTopic(d Device) string {
	return "mapio/" + d.ID + "/availability"
}
