//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package sticky

import (
	"hash/fnv"
	"net"
)

// Pick selects one candidate from ips by rendezvous hashing (highest
// random weight, HRW) keyed on key: the candidate with the highest
// weighted hash wins, giving a deterministic pick for a fixed key/set
// and a stable alternate when a single candidate is removed.
func Pick(key string, ips []net.IP) (net.IP, bool) {
	if len(ips) == 0 {
		return nil, false
	}
	var best net.IP
	var bestWeight uint64
	for i, ip := range ips {
		w := weight(key, ip)
		if i == 0 || w > bestWeight {
			bestWeight = w
			best = ip
		}
	}
	return best, true
}

// weight computes the 64-bit HRW weight for (key, ip).
func weight(key string, ip net.IP) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write(ip.To16())
	return h.Sum64()
}

// PickWeighted is [Pick] generalized with per-candidate integer weights
// (e.g. server capacity); a candidate's effective score is its HRW hash
// scaled by weight/maxWeight using the standard HRW transform
// `-weight / ln(hash/2^64)` approximated here with a simple multiply to
// avoid floating-point edge cases across platforms.
func PickWeighted(key string, ips []net.IP, weights []uint32) (net.IP, bool) {
	if len(ips) == 0 || len(ips) != len(weights) {
		return nil, false
	}
	var maxWeight uint64 = 1
	for _, wt := range weights {
		if uint64(wt) > maxWeight {
			maxWeight = uint64(wt)
		}
	}
	var best net.IP
	var bestScore uint64
	for i, ip := range ips {
		score := (weight(key, ip) / maxWeight) * uint64(weights[i])
		if i == 0 || score > bestScore {
			bestScore = score
			best = ip
		}
	}
	return best, true
}

func boundedLog2(n uint32) uint32 {
	var l uint32
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
