//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package adaptation implements C10: the ICAP-shaped preview/continue
// client that C6 (HTTP/1), C8 (SMTP), and C9 (IMAP) call into for
// external content adaptation. One [Client] call covers the full
// lifecycle described in §4.10: send a bounded preview of the request
// head plus body, interpret the adapter's response code, and hand back
// one of a small set of outcomes (no change, modified head/body, or an
// error-response that preempts the rest of the exchange).
package adaptation
