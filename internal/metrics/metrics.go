package metrics

import "expvar"

var (
	OrdersSubmitted = expvar.NewInt("orders_submitted")
	OrdersFilled    = expvar.NewInt("orders_filled")
	OrdersCancelled = expvar.NewInt("orders_cancelled")
	OrdersRejected  = expvar.NewInt("orders_rejected")
	RiskChecks      = expvar.NewInt("risk_checks")
	RiskBlocked     = expvar.NewInt("risk_blocked")
	VaRQueries      = expvar.NewInt("var_queries")
	SnapshotSaves   = expvar.NewInt("snapshot_saves")
	SnapshotLoads   = expvar.NewInt("snapshot_loads")
)
