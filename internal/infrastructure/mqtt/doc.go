// Package mqtt connects the AirCloud bridge to an MQTT broker.
//
// It wraps paho.mqtt.golang with:
//   - auto-reconnect with subscriptions restored after every reconnect
//   - a retained Last Will on {prefix}/status so consumers see a crash
//   - publish and subscribe helpers that validate topic and QoS
//   - panic recovery around message handlers
//
// # Topics
//
//	{prefix}/state/{device_id}    retained unit state, published by the bridge
//	{prefix}/command/{device_id}  control intents from consumers
//	{prefix}/ack/{device_id}      command outcomes
//	{prefix}/health               periodic bridge health
//	{prefix}/status               online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1, handleCommand)
package mqtt
