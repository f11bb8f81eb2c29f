// Package influxdb stores point history in InfluxDB v2.
//
// Writes go through the client's non-blocking, batched WriteAPI; history
// is read back with a Flux aggregateWindow(mean) query. Each numeric point
// is one series in the "points" measurement tagged by logical key.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteValue("pv_power", 4210.5, time.Now())
package influxdb
