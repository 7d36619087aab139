//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package imapintercept implements C9: the IMAP tagged-command pipeline,
// literal data forwarding, IDLE handling, ENABLE capability filtering,
// and APPEND-literal adaptation.
package imapintercept
