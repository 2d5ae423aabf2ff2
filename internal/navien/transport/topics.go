package transport

import "fmt"

// Navien cloud topic scheme: navilink/{mac}/{channel}.
//
// The device publishes telemetry on its status and feature channels; the
// bridge publishes requests and control commands on the command channel.
const topicPrefix = "navilink"

// Topics provides builders for the Navien broker topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// DeviceStatus returns the topic on which a device publishes status reports.
//
// Example: navilink/04786332fca0/status
func (Topics) DeviceStatus(mac string) string {
	return fmt.Sprintf("%s/%s/status", topicPrefix, mac)
}

// DeviceFeature returns the topic on which a device publishes its
// feature/capability report.
//
// Example: navilink/04786332fca0/feature
func (Topics) DeviceFeature(mac string) string {
	return fmt.Sprintf("%s/%s/feature", topicPrefix, mac)
}

// DeviceCommand returns the topic the bridge publishes commands and
// refresh requests to.
//
// Example: navilink/04786332fca0/cmd
func (Topics) DeviceCommand(mac string) string {
	return fmt.Sprintf("%s/%s/cmd", topicPrefix, mac)
}
