// Package health aggregates dependency checks into a single readiness
// decision.
//
// Event bus and queue components expose Healthcheck(ctx) error, which is
// exactly the Check signature, so they register directly:
//
//	checker := health.NewChecker(health.WithCheckTimeout(2 * time.Second))
//
//	checker.Register("event_publisher", publisher.Healthcheck)
//	checker.Register("queue_worker", worker.Healthcheck)
//	checker.Register("queue_storage", storage.Healthcheck)
//
//	// Single verdict for a readiness probe
//	if err := checker.CheckAll(ctx); err != nil {
//		// not ready; err names every failing component
//	}
//
//	// Or a per-component report
//	for name, err := range checker.Report(ctx) {
//		fmt.Println(name, err)
//	}
//
// Each check runs under its own timeout, so a hung dependency degrades
// the report instead of stalling it.
package health
