//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package errtax

import "syscall"

// classifyErrno maps a platform [syscall.Errno] to the short classifier
// string used in structured logging. The errno constants themselves come
// from the platform-specific tables in errno_unix.go / errno_windows.go.
func classifyErrno(errno syscall.Errno) string {
	switch errno {
	case errEADDRNOTAVAIL:
		return "EADDRNOTAVAIL"
	case errEADDRINUSE:
		return "EADDRINUSE"
	case errECONNABORTED:
		return "ECONNABORTED"
	case errECONNREFUSED:
		return "ECONNREFUSED"
	case errECONNRESET:
		return "ECONNRESET"
	case errEHOSTUNREACH:
		return "EHOSTUNREACH"
	case errEINVAL:
		return "EINVAL"
	case errEINTR:
		return "EINTR"
	case errENETDOWN:
		return "ENETDOWN"
	case errENETUNREACH:
		return "ENETUNREACH"
	case errENOBUFS:
		return "ENOBUFS"
	case errENOTCONN:
		return "ENOTCONN"
	case errEPROTONOSUPPORT:
		return "EPROTONOSUPPORT"
	case errETIMEDOUT:
		return "ETIMEDOUT"
	default:
		return "unknown"
	}
}
