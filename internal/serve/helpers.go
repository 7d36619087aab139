//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package serve

import (
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
)

// splitAbsoluteURI extracts (host, port) from an absolute-form request
// target ("http://host[:port]/path..."), defaulting the port by scheme.
func splitAbsoluteURI(target string) (string, int, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", 0, err
	}
	defaultPort := 80
	if u.Scheme == "https" {
		defaultPort = 443
	}
	if u.Port() == "" {
		return u.Hostname(), defaultPort, nil
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, err
	}
	return u.Hostname(), port, nil
}

// decodeBasicUsername decodes a base64 "user:pass" Basic-auth credential
// and returns just the username half.
func decodeBasicUsername(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	user, _, _ := strings.Cut(string(raw), ":")
	return user, nil
}
