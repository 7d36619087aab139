//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package imapintercept

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bassosimone/inspectproxy/internal/adaptation"
	"github.com/bassosimone/inspectproxy/internal/errtax"
	"github.com/bassosimone/inspectproxy/internal/ioprim"
)

// Config bundles everything [Driver] needs for one IMAP connection pair.
type Config struct {
	Supported  []string // ENABLE/CAPABILITY tokens this proxy intercepts
	MaxLineLen int
	Adapter    *adaptation.Client // nil disables APPEND-literal adaptation
}

// Driver relays one client<->upstream IMAP connection pair, enforcing
// the authenticated/selected layering, filtering ENABLE/CAPABILITY, and
// routing APPEND literals through adaptation.
type Driver struct {
	cfg  Config
	conn *Conn
}

// NewDriver constructs a [*Driver] for one IMAP connection pair.
func NewDriver(cfg Config) *Driver {
	if cfg.MaxLineLen == 0 {
		cfg.MaxLineLen = 1 << 20
	}
	return &Driver{cfg: cfg, conn: NewConn(cfg.Supported)}
}

// Run pumps tagged commands client->upstream and responses
// upstream->client until LOGOUT/BYE completes or an I/O error occurs.
func (d *Driver) Run(ctx context.Context, cltR io.Reader, cltW io.Writer, upsR io.Reader, upsW io.Writer) error {
	cltLines := ioprim.NewLineReader(cltR, d.cfg.MaxLineLen)
	upsLines := ioprim.NewLineReader(upsR, d.cfg.MaxLineLen)

	for {
		if d.conn.Pipeline.Idling() {
			if err := d.runIdle(cltLines, upsLines, cltW); err != nil {
				return err
			}
			continue
		}

		rawLine, err := cltLines.ReadLine()
		if err != nil {
			return errtax.New(errtax.FromError("client", err), "imap command read", err)
		}
		line := string(rawLine)

		cmd, perr := ParseCommand(line)
		if perr != nil {
			if _, werr := cltW.Write([]byte("* BAD malformed command\r\n")); werr != nil {
				return errtax.New(errtax.ReasonClientTCPWriteFailed, "imap bad-command reply", werr)
			}
			continue
		}

		if verr := d.conn.ValidateCommand(cmd.Verb); verr != nil {
			reply := fmt.Sprintf("%s BAD %s\r\n", cmd.Tag, verr.Error())
			if _, werr := cltW.Write([]byte(reply)); werr != nil {
				return errtax.New(errtax.ReasonClientTCPWriteFailed, "imap validation reply", werr)
			}
			continue
		}

		if cmd.Verb == "ENABLE" {
			forward, err := d.handleEnable(cmd, cltW)
			if err != nil {
				return err
			}
			if !forward {
				continue
			}
		}

		if err := d.forwardCommand(ctx, cmd, cltR, cltW, upsW); err != nil {
			return err
		}

		if cmd.Verb == "IDLE" {
			d.conn.Pipeline.EnterIdle()
			continue
		}

		respLine, err := upsLines.ReadLine()
		if err != nil {
			return errtax.New(errtax.FromError("upstream", err), "imap response read", err)
		}
		if err := d.relayResponse(cmd, respLine, upsLines, cltW); err != nil {
			return err
		}

		if cmd.Verb == "LOGOUT" {
			return nil
		}
	}
}

// forwardCommand writes the command upstream, pumping any client literal
// first (waiting for a `+` continuation when required).
func (d *Driver) forwardCommand(ctx context.Context, cmd *Command, cltR io.Reader, cltW io.Writer, upsW io.Writer) error {
	if _, err := fmt.Fprintf(upsW, "%s %s %s\r\n", cmd.Tag, cmd.Verb, cmd.Rest); err != nil {
		return errtax.New(errtax.ReasonUpstreamWriteFailed, "imap command forward", err)
	}
	if !cmd.HasLiteral {
		return nil
	}
	if cmd.Verb == "APPEND" && d.cfg.Adapter != nil {
		return d.pumpAppendLiteral(ctx, cmd, cltR, cltW, upsW)
	}
	return d.pumpLiteral(cmd.LiteralSize, cltR, upsW)
}

// pumpLiteral copies exactly size octets from r to w.
func (d *Driver) pumpLiteral(size int64, r io.Reader, w io.Writer) error {
	if _, err := io.CopyN(w, r, size); err != nil {
		return errtax.New(errtax.FromError("client", err), "imap literal pump", err)
	}
	return nil
}

// pumpAppendLiteral routes an APPEND message literal through the
// adaptation client; on an error-response outcome it emits BAD to the
// client then closes with BYE per §4.9.
func (d *Driver) pumpAppendLiteral(ctx context.Context, cmd *Command, cltR io.Reader, cltW io.Writer, upsW io.Writer) error {
	limited := io.LimitReader(cltR, cmd.LiteralSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return errtax.New(errtax.FromError("client", err), "imap APPEND literal read", err)
	}
	outcome, aerr := d.cfg.Adapter.Adapt(ctx, adaptation.MethodXferAppend, []byte(cmd.Tag+" APPEND "+cmd.Rest), body, nil)
	if aerr != nil {
		_, werr := upsW.Write(body)
		return werr
	}
	if outcome.Kind == adaptation.OutcomeErrorResponse {
		if _, werr := cltW.Write([]byte(cmd.Tag + " BAD rejected by adapter\r\n* BYE adaptation failure\r\n")); werr != nil {
			return errtax.New(errtax.ReasonClientTCPWriteFailed, "imap adapter-reject reply", werr)
		}
		return &errorResponseClose{}
	}
	if outcome.ModifiedBody != nil {
		_, err := io.Copy(upsW, outcome.ModifiedBody)
		return err
	}
	_, err = upsW.Write(body)
	return err
}

type errorResponseClose struct{}

func (*errorResponseClose) Error() string { return "imap APPEND rejected by adapter" }

// handleEnable filters the requested tokens against what this proxy
// supports and either answers locally (nothing survives, forward is
// false) or rewrites cmd.Rest to the filtered set so the caller forwards
// it upstream (forward is true).
func (d *Driver) handleEnable(cmd *Command, cltW io.Writer) (forward bool, err error) {
	requested := ParseEnableTokens(cmd.Rest)
	kept := d.conn.FilterEnable(requested)
	if len(kept) == 0 {
		_, err := fmt.Fprintf(cltW, "%s OK no enabled\r\n", cmd.Tag)
		return false, err
	}
	cmd.Rest = strings.Join(kept, " ")
	return true, nil
}

// filterCapabilityLine rewrites an untagged CAPABILITY response through
// the same token-intersection filter as ENABLE (§4.9): only tokens this
// proxy advertises in Supported survive.
func (d *Driver) filterCapabilityLine(respCmd *Command) []byte {
	kept := d.conn.FilterEnable(ParseEnableTokens(respCmd.Rest))
	return []byte(fmt.Sprintf("%s CAPABILITY %s", respCmd.Tag, strings.Join(kept, " ")))
}

// relayResponse forwards one response line to the client, tracking
// SELECT/EXAMINE/CLOSE/UNSELECT/AUTHENTICATE/LOGIN state transitions,
// rewriting untagged CAPABILITY lines through the ENABLE filter, and
// pumping any announced response literal.
func (d *Driver) relayResponse(cmd *Command, line []byte, upsLines *ioprim.LineReader, cltW io.Writer) error {
	text := string(line)
	respCmd, _ := ParseCommand(text)
	if respCmd != nil && respCmd.Verb == "CAPABILITY" {
		line = d.filterCapabilityLine(respCmd)
	}
	if respCmd != nil && respCmd.HasLiteral {
		if _, err := cltW.Write(append(line, '\r', '\n')); err != nil {
			return errtax.New(errtax.ReasonClientTCPWriteFailed, "imap response forward", err)
		}
		if _, err := io.CopyN(cltW, upsLines.Buffered(), respCmd.LiteralSize); err != nil {
			return errtax.New(errtax.FromError("upstream", err), "imap response literal pump", err)
		}
		return nil
	}
	if strings.Contains(strings.ToUpper(text), " OK") {
		switch cmd.Verb {
		case "LOGIN", "AUTHENTICATE":
			d.conn.OnAuthenticated()
		case "SELECT", "EXAMINE":
			d.conn.OnSelect()
		case "CLOSE", "UNSELECT":
			d.conn.OnUnselect()
		}
	}
	if _, err := cltW.Write(append(line, '\r', '\n')); err != nil {
		return errtax.New(errtax.ReasonClientTCPWriteFailed, "imap response forward", err)
	}
	return nil
}

// runIdle relays untagged server lines to the client while IDLE is in
// flight and watches, concurrently, for the client's terminating "DONE"
// line (or a protocol violation). It returns once DONE is seen, an I/O
// error occurs on either side, or the client sends anything but DONE.
func (d *Driver) runIdle(cltLines, upsLines *ioprim.LineReader, cltW io.Writer) error {
	doneCh := make(chan error, 1)
	go func() {
		line, err := cltLines.ReadLine()
		if err != nil {
			doneCh <- errtax.New(errtax.FromError("client", err), "imap idle client read", err)
			return
		}
		doneCh <- d.conn.Pipeline.ExitIdle(strings.TrimSpace(string(line)))
	}()

	for {
		select {
		case err := <-doneCh:
			return err
		default:
		}
		line, err := upsLines.ReadLine()
		if err != nil {
			return errtax.New(errtax.FromError("upstream", err), "imap idle response read", err)
		}
		if _, err := cltW.Write(append(line, '\r', '\n')); err != nil {
			return errtax.New(errtax.ReasonClientTCPWriteFailed, "imap idle forward", err)
		}
	}
}
