// Package monitor samples job store statistics on a fixed interval and
// raises edge-triggered alerts for queue backlog and elevated error
// rates. Metrics are approximate by design: readings can lag the store
// by up to one sample interval, but thresholds never fire twice for the
// same excursion.
package monitor
