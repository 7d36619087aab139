//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package metrics exposes the §6 counters/gauges via
// [github.com/prometheus/client_golang], tagged the way the original
// implementation's user.rs tags its StatsD emission: server, user,
// transport, and request-type labels.
package metrics
