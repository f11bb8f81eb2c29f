// Package mqtt connects NexoWatt VIS to the automation host's MQTT broker.
//
// Every external point id maps to a retained state topic. Writes are
// published to the state topic plus a command suffix:
//
//	nexowatt.0.settings.mode  ->  <prefix>nexowatt/0/settings/mode      (state)
//	                              <prefix>nexowatt/0/settings/mode/set  (command)
//
// The client provides:
//   - Initial connection with exponential backoff (ConnectWithRetry)
//   - Auto-reconnect with subscription restoration
//   - A retained online/offline status topic with Last Will
//   - Panic recovery around message handlers
//
// Usage:
//
//	client, err := mqtt.ConnectWithRetry(ctx, cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeState("inv.0.power", func(topic string, payload []byte) error {
//	    return nil
//	})
package mqtt
