//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package smtpintercept implements C8: the SMTP session and transaction
// state machines that gate MAIL/RCPT/DATA/BDAT/BURL data flows and hand
// the DATA payload to the content-adaptation client.
package smtpintercept
