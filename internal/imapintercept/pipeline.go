//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package imapintercept

import "errors"

// ErrOngoingCommand is returned when a second command tries to enter
// flight while one is already awaiting literal continuation.
var ErrOngoingCommand = errors.New("a command is already awaiting continuation")

// ErrOngoingResponse is returned when a second response tries to enter
// flight while one is already awaiting a server literal.
var ErrOngoingResponse = errors.New("a response is already awaiting a server literal")

// ErrIdleProtocolViolation is returned when the client sends anything
// other than exactly "DONE\r\n" while IDLE is in flight.
var ErrIdleProtocolViolation = errors.New("expected DONE while idling")

// PendingCommand is one outstanding tagged command, keyed by tag.
type PendingCommand struct {
	Tag             string
	Verb            string
	WaitContinuation bool
	LiteralSize     int64
}

// Pipeline is the cmd_pipeline of §4.9: outstanding commands keyed by
// tag, with at most one ongoing command (literal in flight) and one
// ongoing response (awaiting server literal continuation).
type Pipeline struct {
	byTag            map[string]*PendingCommand
	ongoingCommand   *PendingCommand
	ongoingResponse  *PendingCommand
	idling           bool
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{byTag: make(map[string]*PendingCommand)}
}

// Enqueue registers a new tagged command. If it has a literal argument
// awaiting client continuation, it becomes the ongoing command; only one
// may be ongoing at a time.
func (p *Pipeline) Enqueue(cmd *PendingCommand) error {
	if cmd.WaitContinuation {
		if p.ongoingCommand != nil {
			return ErrOngoingCommand
		}
		p.ongoingCommand = cmd
	}
	p.byTag[cmd.Tag] = cmd
	return nil
}

// CompleteCommand clears a command's ongoing-literal status once its
// literal has been fully streamed.
func (p *Pipeline) CompleteCommand(tag string) {
	if p.ongoingCommand != nil && p.ongoingCommand.Tag == tag {
		p.ongoingCommand = nil
	}
}

// BeginResponseLiteral marks tag's response as awaiting a server
// literal; only one response may be ongoing at a time.
func (p *Pipeline) BeginResponseLiteral(tag string) error {
	if p.ongoingResponse != nil {
		return ErrOngoingResponse
	}
	p.ongoingResponse = p.byTag[tag]
	return nil
}

// CompleteResponse clears the ongoing-response marker.
func (p *Pipeline) CompleteResponse() {
	p.ongoingResponse = nil
}

// Resolve removes and returns the pending command for tag, if any.
func (p *Pipeline) Resolve(tag string) (*PendingCommand, bool) {
	cmd, ok := p.byTag[tag]
	if ok {
		delete(p.byTag, tag)
	}
	return cmd, ok
}

// EnterIdle marks the pipeline as idling (a reentrant sub-state per
// §4.9); only a client line of exactly "DONE" may exit it.
func (p *Pipeline) EnterIdle() {
	p.idling = true
}

// ExitIdle validates the client's line against the IDLE exit contract.
func (p *Pipeline) ExitIdle(line string) error {
	if !p.idling {
		return nil
	}
	if line != "DONE" {
		return ErrIdleProtocolViolation
	}
	p.idling = false
	return nil
}

// Idling reports whether the pipeline is currently in the IDLE sub-state.
func (p *Pipeline) Idling() bool {
	return p.idling
}
