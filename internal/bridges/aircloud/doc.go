// Package aircloud bridges the AirCloud climate units onto MQTT.
//
// The bridge publishes every unit's state as a retained message, accepts
// control intents on per-unit command topics and answers each with an ack.
// A health message is published periodically and on every status change.
//
// # Topics
//
//	{prefix}/state/{device_id}    retained StateMessage
//	{prefix}/command/{device_id}  CommandMessage from consumers
//	{prefix}/ack/{device_id}      AckMessage for every command
//	{prefix}/health               retained HealthMessage
//
// A unit that disappears from the account has its retained state cleared
// with an empty payload.
//
// # Command payloads
//
// A command carries any subset of the control fields plus an optional
// correlation id that is echoed in the ack:
//
//	{"id": "kitchen-1", "power": true, "mode": "cool", "temperature": 23.5}
//
// Thread Safety: All methods are safe for concurrent use.
package aircloud
