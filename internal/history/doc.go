// Package history serves averaged time series of mirrored points and
// records incoming numeric values to the configured time-series backend.
//
// Two backends are supported: InfluxDB (Flux aggregateWindow) and
// VictoriaMetrics (PromQL avg_over_time). Only one serves queries at a
// time; which one is chosen by history.backend in the config.
package history
