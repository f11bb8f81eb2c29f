// Package statestore adapts an MQTT broker into the external store the
// mirror engine reads from and the write gateway writes to.
//
// Point "inv.0.power" lives on topic <state_prefix>inv/0/power. Values
// are published there (retained) by the owning system; writes go to the
// same topic plus the command suffix. Payloads may be {"val":..,"ts":..}
// objects, bare JSON scalars, or plain text.
package statestore
