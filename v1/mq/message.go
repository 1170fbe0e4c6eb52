package mq

import (
	"encoding/json"

	"github.com/Jacobbishopxy/pqx/v1/ec"
	"github.com/Jacobbishopxy/pqx/v1/header"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// CommandConfig carries the optional retry/poke/timeout knobs. Seconds
// fields are converted to milliseconds on the wire by the Publisher, not
// here — this struct only holds the user-facing units.
type CommandConfig struct {
	Retry            *uint8  `json:"retry,omitempty"`
	Poke             *uint16 `json:"poke,omitempty"`             // seconds
	WaitingTimeout   *uint32 `json:"waiting_timeout,omitempty"`  // seconds
	ConsumingTimeout *uint32 `json:"consuming_timeout,omitempty"` // seconds
}

// Command is the unit of work: one or more mailing targets, optional
// retry/timeout config, and the command descriptor to execute.
type Command struct {
	MailingTo []header.Pairs `json:"mailing_to"`
	Config    CommandConfig  `json:"config"`
	Cmd       ec.CmdArg      `json:"cmd"`
}

// commandWire is Command's JSON shape, with Cmd replaced by a raw message so
// the tagged CmdArg union can be (de)serialised through ec.MarshalCmdArg /
// ec.UnmarshalCmdArg.
type commandWire struct {
	MailingTo []header.Pairs  `json:"mailing_to"`
	Config    CommandConfig   `json:"config"`
	Cmd       json.RawMessage `json:"cmd"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	const op = "mq.Command.MarshalJSON"

	cmdJSON, err := ec.MarshalCmdArg(c.Cmd)
	if err != nil {
		return nil, perr.New(op, perr.Deserialisation, err)
	}
	return json.Marshal(commandWire{
		MailingTo: c.MailingTo,
		Config:    c.Config,
		Cmd:       cmdJSON,
	})
}

func (c *Command) UnmarshalJSON(data []byte) error {
	const op = "mq.Command.UnmarshalJSON"

	var wire commandWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return perr.New(op, perr.Deserialisation, err)
	}

	cmd, err := ec.UnmarshalCmdArg(wire.Cmd)
	if err != nil {
		return perr.New(op, perr.Deserialisation, err)
	}

	c.MailingTo = wire.MailingTo
	c.Config = wire.Config
	c.Cmd = cmd
	return nil
}

// ExecutionResult is the outcome of one execution attempt.
type ExecutionResult struct {
	// ExitCode is the child's exit status. A missing code (killed by
	// signal) is encoded as 1.
	ExitCode int32   `json:"exit_code"`
	Result   *string `json:"result,omitempty"`
}

// MissingExitCode is substituted for a signal-killed process's absent exit
// status.
const MissingExitCode int32 = 1
