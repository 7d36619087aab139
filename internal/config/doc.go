//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package config loads the YAML [ProxyConfig] tree: listener front-ends,
// TLS profiles, adaptation endpoints, per-user policy, and sticky-
// upstream parameters. Loading itself is ambient plumbing around the
// out-of-scope configuration-management feature; the tree's shape is
// what every other package's Config struct is populated from.
package config
