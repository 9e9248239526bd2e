// Package mqtt publishes relay events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing on {prefix}/event/{type}
//   - Retained online/offline status on {prefix}/system/status, with a
//     Last Will so subscribers notice a crash
//
// The relay never subscribes; MQTT is an outbound notification channel only.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishEvent("door.toggled", payload)
package mqtt
