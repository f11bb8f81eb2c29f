package mqtt

import (
	"strings"
)

// Topics maps external point ids onto broker topics.
//
// An external id such as "nexowatt.0.pv.power" becomes the state topic
// "<prefix>nexowatt/0/pv/power". Writes go to the state topic plus
// "/<suffix>", which the automation host treats as a command.
//
//	topics := mqtt.Topics{Prefix: "iobroker/", CommandSuffix: "set"}
//	topics.State("inv.0.power")   // "iobroker/inv/0/power"
//	topics.Command("inv.0.power") // "iobroker/inv/0/power/set"
type Topics struct {
	Prefix        string
	CommandSuffix string
	ClientID      string
}

// NewTopics builds Topics from the broker configuration values.
func NewTopics(prefix, commandSuffix, clientID string) Topics {
	if commandSuffix == "" {
		commandSuffix = "set"
	}
	return Topics{Prefix: prefix, CommandSuffix: commandSuffix, ClientID: clientID}
}

// State returns the topic carrying values of the given external id.
func (t Topics) State(externalID string) string {
	return t.Prefix + strings.ReplaceAll(externalID, ".", "/")
}

// Command returns the topic a new value for externalID is published to.
func (t Topics) Command(externalID string) string {
	return t.State(externalID) + "/" + t.CommandSuffix
}

// Status returns the retained online/offline topic for this client.
//
// Example: nexowatt/nexowatt-vis/status
func (t Topics) Status() string {
	return "nexowatt/" + t.ClientID + "/status"
}
