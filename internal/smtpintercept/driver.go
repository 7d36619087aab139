//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package smtpintercept

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/bassosimone/inspectproxy/internal/adaptation"
	"github.com/bassosimone/inspectproxy/internal/errtax"
	"github.com/bassosimone/inspectproxy/internal/ioprim"
)

// Timeouts bundles the per-phase ceilings §4.8 names.
type Timeouts struct {
	CommandWait      time.Duration
	ResponseWait     time.Duration
	DataInitiation   time.Duration
	DataTermination  time.Duration
}

// DefaultTimeouts returns conservative values used when a server leaves a
// knob unset.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		CommandWait:     5 * time.Minute,
		ResponseWait:    5 * time.Minute,
		DataInitiation:  2 * time.Minute,
		DataTermination: 10 * time.Minute,
	}
}

// Config bundles everything [Driver] needs for one SMTP session.
type Config struct {
	Timeouts   Timeouts
	MaxLineLen int
	Adapter    *adaptation.Client // nil disables DATA adaptation
}

// Driver relays one client<->upstream SMTP connection pair, tracking
// [Session]/[Transaction] state and sending the DATA body through the
// adaptation client when configured.
type Driver struct {
	cfg  Config
	sess *Session
}

// NewDriver constructs a [*Driver] for one SMTP connection pair.
func NewDriver(cfg Config) *Driver {
	if cfg.MaxLineLen == 0 {
		cfg.MaxLineLen = 8192
	}
	return &Driver{cfg: cfg, sess: NewSession()}
}

// Run pumps command lines clt->ups and response lines ups->clt,
// validating the session machine and intercepting DATA bodies for
// adaptation. It returns when QUIT completes, the connection closes, or
// a protocol violation forces early termination.
func (d *Driver) Run(ctx context.Context, cltR io.Reader, cltW io.Writer, upsR io.Reader, upsW io.Writer) error {
	cltLines := ioprim.NewLineReader(cltR, d.cfg.MaxLineLen)
	upsLines := ioprim.NewLineReader(upsR, d.cfg.MaxLineLen)

	for {
		cmdLine, err := cltLines.ReadLine()
		if err != nil {
			return errtax.New(errtax.FromError("client", err), "smtp command read", err)
		}
		verb := commandVerb(cmdLine)

		if err := d.sess.Advance(verb); err != nil {
			if _, werr := cltW.Write([]byte("503 Bad sequence of commands\r\n")); werr != nil {
				return errtax.New(errtax.ReasonClientTCPWriteFailed, "smtp 503 reply", werr)
			}
			continue
		}

		trackMailRcpt(d.sess, verb, cmdLine)

		if _, err := upsW.Write(append(cmdLine, '\r', '\n')); err != nil {
			return errtax.New(errtax.ReasonUpstreamWriteFailed, "smtp command forward", err)
		}

		respLine, err := upsLines.ReadLine()
		if err != nil {
			return errtax.New(errtax.FromError("upstream", err), "smtp response read", err)
		}

		if isUnavailable(respLine) && d.sess.State != StateTransaction {
			return errtax.New(errtax.ReasonUpstreamAppUnavailable, "smtp service unavailable", ErrUpstreamUnavailable)
		}

		if verb == "DATA" && isDataGo(respLine) {
			if _, err := cltW.Write(append(respLine, '\r', '\n')); err != nil {
				return errtax.New(errtax.ReasonClientTCPWriteFailed, "smtp response forward", err)
			}
			if err := d.pumpData(ctx, cltR, upsW); err != nil {
				return err
			}
			if respLine, err = upsLines.ReadLine(); err != nil {
				return errtax.New(errtax.FromError("upstream", err), "smtp response read", err)
			}
		}

		if _, err := cltW.Write(append(respLine, '\r', '\n')); err != nil {
			return errtax.New(errtax.ReasonClientTCPWriteFailed, "smtp response forward", err)
		}

		if verb == "QUIT" {
			return nil
		}
	}
}

// pumpData reads the dot-stuffed DATA body from the client up to the
// terminating "." line and forwards it upstream, optionally through the
// adaptation client.
func (d *Driver) pumpData(ctx context.Context, cltR io.Reader, upsW io.Writer) error {
	lr := ioprim.NewLineReader(cltR, d.cfg.MaxLineLen)
	var body []byte
	for {
		line, err := lr.ReadLine()
		if err != nil {
			return errtax.New(errtax.FromError("client", err), "smtp DATA body read", err)
		}
		if string(line) == "." {
			break
		}
		unstuffed := line
		if strings.HasPrefix(string(line), "..") {
			unstuffed = line[1:]
		}
		body = append(body, unstuffed...)
		body = append(body, '\r', '\n')
	}

	if d.cfg.Adapter == nil {
		_, err := upsW.Write(append(body, '.', '\r', '\n'))
		return err
	}

	outcome, err := d.cfg.Adapter.Adapt(ctx, adaptation.MethodXferData, nil, body, nil)
	if err != nil {
		_, werr := upsW.Write(append(body, '.', '\r', '\n'))
		if werr != nil {
			return werr
		}
		return nil
	}
	switch outcome.Kind {
	case adaptation.OutcomeModifiedHeadAndBody, adaptation.OutcomeModifiedHead:
		if outcome.ModifiedBody != nil {
			if _, err := io.Copy(upsW, outcome.ModifiedBody); err != nil {
				return err
			}
		}
		_, err := upsW.Write([]byte(".\r\n"))
		return err
	default:
		_, err := upsW.Write(append(body, '.', '\r', '\n'))
		return err
	}
}

func commandVerb(line []byte) string {
	s := string(line)
	if idx := strings.IndexAny(s, " :"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

func isDataGo(line []byte) bool {
	return len(line) >= 3 && string(line[:3]) == "354"
}

func isUnavailable(line []byte) bool {
	return len(line) >= 3 && string(line[:3]) == "421"
}

func trackMailRcpt(sess *Session, verb string, line []byte) {
	if sess.Txn == nil {
		return
	}
	switch verb {
	case "MAIL":
		sess.Txn.SetReversePath(string(line))
	case "RCPT":
		sess.Txn.AddForwardPath(string(line))
	}
}
