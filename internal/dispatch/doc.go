// Package dispatch turns logical commands into device exchanges.
//
// A Command (play, stop, status) is encoded into a device path and sent
// either to one device or to every member of a group. Group dispatch fans
// out one goroutine per resolved member, each under its own timeout, and
// collects a GroupOutcome whose PerMember slice follows membership order:
//
//	RunOnGroup(ctx, "g", Stop())
//	    ├─ member A ──▶ speaker.Client ──▶ 200        success
//	    ├─ member B ──▶ speaker.Client ──▶ refused    failed, error set
//	    ├─ member X    (deleted device)               failed, "not found"
//	    └─ member C ──▶ speaker.Client ──▶ 500        failed, status set
//	    ═▶ {total 4, succeeded 1, failed 3}
//
// Every exchange emits command.* events and, when configured, a metrics
// point. CommandBridge exposes the same operations over MQTT.
package dispatch
