//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Label names shared across the user-scoped metric families, mirroring
// the original implementation's user_group/user/user_type/server tags.
const (
	labelUserGroup = "user_group"
	labelUser      = "user"
	labelUserType  = "user_type"
	labelServer    = "server"
	labelTransport = "transport"
	labelRequest   = "request_type"
)

// ForbiddenReason enumerates the user.forbidden.* sub-counters.
type ForbiddenReason string

const (
	ForbiddenAuthFailed  ForbiddenReason = "auth_failed"
	ForbiddenUserExpired ForbiddenReason = "user_expired"
	ForbiddenUserBlocked ForbiddenReason = "user_blocked"
	ForbiddenFullyLoaded ForbiddenReason = "fully_loaded"
	ForbiddenRateLimited ForbiddenReason = "rate_limited"
	ForbiddenProtoBanned ForbiddenReason = "proto_banned"
	ForbiddenSrcBlocked  ForbiddenReason = "src_blocked"
	ForbiddenDestDenied  ForbiddenReason = "dest_denied"
	ForbiddenIPBlocked   ForbiddenReason = "ip_blocked"
	ForbiddenLogSkipped  ForbiddenReason = "log_skipped"
	ForbiddenUaBlocked   ForbiddenReason = "ua_blocked"
)

// UserMetrics bundles the per-user counter/gauge families §6 names:
// request totals, traffic byte counts, and the forbidden sub-counters.
type UserMetrics struct {
	RequestTotal   *prometheus.CounterVec
	TrafficBytes   *prometheus.CounterVec
	UpstreamBytes  *prometheus.CounterVec
	Forbidden      *prometheus.CounterVec
	ConnectionsAlive *prometheus.GaugeVec
}

// NewUserMetrics registers the user-scoped families with reg and returns
// the handle used by front-end/interceptor code to record observations.
func NewUserMetrics(reg prometheus.Registerer) *UserMetrics {
	m := &UserMetrics{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "g3mitm",
			Subsystem: "user",
			Name:      "request_total",
			Help:      "Total requests handled per user, server, and request type.",
		}, []string{labelUserGroup, labelUser, labelUserType, labelServer, labelRequest}),
		TrafficBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "g3mitm",
			Subsystem: "user",
			Name:      "traffic_bytes_total",
			Help:      "Client-side traffic bytes per user, server, and transport.",
		}, []string{labelUserGroup, labelUser, labelUserType, labelServer, labelTransport}),
		UpstreamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "g3mitm",
			Subsystem: "user",
			Name:      "upstream_traffic_bytes_total",
			Help:      "Upstream-side traffic bytes per user, server, and transport.",
		}, []string{labelUserGroup, labelUser, labelUserType, labelServer, labelTransport}),
		Forbidden: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "g3mitm",
			Subsystem: "user",
			Name:      "forbidden_total",
			Help:      "Forbidden-request sub-counters per user and reason, matching user.forbidden.* in the original implementation.",
		}, []string{labelUserGroup, labelUser, labelUserType, labelServer, "reason"}),
		ConnectionsAlive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "g3mitm",
			Subsystem: "user",
			Name:      "connections_alive",
			Help:      "Currently alive connections per user and server.",
		}, []string{labelUserGroup, labelUser, labelUserType, labelServer}),
	}
	reg.MustRegister(m.RequestTotal, m.TrafficBytes, m.UpstreamBytes, m.Forbidden, m.ConnectionsAlive)
	return m
}

// UserTags identifies the label values for one user's metric observations.
type UserTags struct {
	UserGroup string
	User      string
	UserType  string
	Server    string
}

// ObserveRequest increments the request-total counter for reqType.
func (m *UserMetrics) ObserveRequest(tags UserTags, reqType string) {
	m.RequestTotal.WithLabelValues(tags.UserGroup, tags.User, tags.UserType, tags.Server, reqType).Inc()
}

// AddTrafficBytes adds n client-side bytes for the given transport label
// (e.g. "tcp", "udp", "tls").
func (m *UserMetrics) AddTrafficBytes(tags UserTags, transport string, n float64) {
	m.TrafficBytes.WithLabelValues(tags.UserGroup, tags.User, tags.UserType, tags.Server, transport).Add(n)
}

// AddUpstreamBytes adds n upstream-side bytes for the given transport label.
func (m *UserMetrics) AddUpstreamBytes(tags UserTags, transport string, n float64) {
	m.UpstreamBytes.WithLabelValues(tags.UserGroup, tags.User, tags.UserType, tags.Server, transport).Add(n)
}

// ObserveForbidden increments the forbidden sub-counter for reason.
func (m *UserMetrics) ObserveForbidden(tags UserTags, reason ForbiddenReason) {
	m.Forbidden.WithLabelValues(tags.UserGroup, tags.User, tags.UserType, tags.Server, string(reason)).Inc()
}

// SetConnectionsAlive sets the alive-connections gauge to n.
func (m *UserMetrics) SetConnectionsAlive(tags UserTags, n float64) {
	m.ConnectionsAlive.WithLabelValues(tags.UserGroup, tags.User, tags.UserType, tags.Server).Set(n)
}
