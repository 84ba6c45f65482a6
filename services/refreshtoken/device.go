package refreshtoken

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mileusna/useragent"
)

type Device struct {
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	DeviceType  string `json:"device_type"`
	IPAddress   string `json:"ip_address,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// NewDevice describes the client that presented a token.
func NewDevice(userAgent, ip string) Device {
	device := Device{
		Browser:     "Unknown Browser",
		OS:          "Unknown OS",
		DeviceType:  "Unknown",
		IPAddress:   ip,
		Fingerprint: Fingerprint(userAgent, ip),
	}
	if userAgent == "" {
		return device
	}

	ua := useragent.Parse(userAgent)

	if ua.Name != "" {
		device.Browser = joinVersion(ua.Name, ua.Version)
	}
	if ua.OS != "" {
		device.OS = joinVersion(ua.OS, ua.OSVersion)
	}

	switch {
	case ua.Bot:
		device.DeviceType = "Bot"
	case ua.Mobile:
		device.DeviceType = "Mobile"
	case ua.Tablet:
		device.DeviceType = "Tablet"
	default:
		device.DeviceType = "Desktop"
	}

	return device
}

func (d Device) Label() string {
	return d.Browser + " on " + d.OS
}

func (d Device) encode() string {
	data, err := json.Marshal(d)
	if err != nil {
		return d.Label()
	}
	if len(data) > 500 {
		return d.Label()
	}
	return string(data)
}

// Fingerprint is a stable identifier for a user agent and address pair.
func Fingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + ":" + ip))
	return hex.EncodeToString(sum[:])
}

func joinVersion(name, version string) string {
	if version == "" {
		return name
	}
	return name + " " + version
}
