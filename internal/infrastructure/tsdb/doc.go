// Package tsdb stores point history in VictoriaMetrics.
//
// Values are written as InfluxDB line protocol to /write and read back
// with PromQL range queries against /api/v1/query_range. Each numeric
// point becomes one series:
//
//	points{key="pv_power"} 4210.5
//
// Usage:
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteValue("pv_power", 4210.5, time.Now())
//	samples, err := client.QueryAverage(ctx, "pv_power", from, to, time.Minute)
package tsdb
