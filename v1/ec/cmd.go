// Package ec ("execution") implements the command descriptor sum type and
// the process runner that drains its stdout/stderr. Every variant is a CLI
// invocation spawned via os/exec (ping, bash -c, conda run, ssh,
// docker exec) rather than any SDK.
package ec

import (
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// Kind is the tag of a CmdArg sum type.
type Kind string

const (
	KindPing        Kind = "ping"
	KindBash        Kind = "bash"
	KindSsh         Kind = "ssh"
	KindSshpass     Kind = "sshpass"
	KindCondaPython Kind = "conda_python"
	KindDockerExec  Kind = "docker_exec"
)

// CmdArg is the command descriptor: a tagged sum type describing an
// executable command. Each variant knows how to turn itself into an
// *exec.Cmd.
type CmdArg interface {
	Kind() Kind
	buildCmd() *exec.Cmd
}

// Process is a spawned child process exposing its stdout/stderr pipes.
type Process struct {
	Cmd    *exec.Cmd
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Spawn starts arg's underlying command and returns its pipes. The caller
// owns draining both pipes and calling Cmd.Wait (see Runner).
func Spawn(arg CmdArg) (*Process, error) {
	const op = "ec.Spawn"

	cmd := arg.buildCmd()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, perr.New(op, perr.Execution, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, perr.New(op, perr.Execution, fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, perr.New(op, perr.Execution, fmt.Errorf("spawn %q: %w", cmd.Path, err))
	}

	return &Process{Cmd: cmd, Stdout: stdout, Stderr: stderr}, nil
}

// Ping spawns `ping <addr>`.
type Ping struct {
	Addr string `json:"addr"`
}

func (Ping) Kind() Kind { return KindPing }
func (p Ping) buildCmd() *exec.Cmd {
	return exec.Command("ping", p.Addr)
}

// Bash spawns `bash -c "<argv joined>"`.
type Bash struct {
	Argv []string `json:"argv"`
}

func (Bash) Kind() Kind { return KindBash }
func (b Bash) buildCmd() *exec.Cmd {
	return exec.Command("bash", "-c", joinArgv(b.Argv))
}

// Ssh spawns `ssh <user>@<ip> <argv...>`.
type Ssh struct {
	Ip   string   `json:"ip"`
	User string   `json:"user"`
	Argv []string `json:"argv"`
}

func (Ssh) Kind() Kind { return KindSsh }
func (s Ssh) buildCmd() *exec.Cmd {
	args := append([]string{fmt.Sprintf("%s@%s", s.User, s.Ip)}, s.Argv...)
	return exec.Command("ssh", args...)
}

// Sshpass spawns `sshpass -p <pass> ssh <user>@<ip> <argv...>`.
type Sshpass struct {
	Ip   string   `json:"ip"`
	User string   `json:"user"`
	Pass string   `json:"pass"`
	Argv []string `json:"argv"`
}

func (Sshpass) Kind() Kind { return KindSshpass }
func (s Sshpass) buildCmd() *exec.Cmd {
	args := append([]string{"-p", s.Pass, "ssh", fmt.Sprintf("%s@%s", s.User, s.Ip)}, s.Argv...)
	return exec.Command("sshpass", args...)
}

// CondaPython spawns `conda run -n <env> --live-stream python <script>` with
// the working directory set to Dir.
type CondaPython struct {
	Env    string `json:"env"`
	Dir    string `json:"dir"`
	Script string `json:"script"`
}

func (CondaPython) Kind() Kind { return KindCondaPython }
func (c CondaPython) buildCmd() *exec.Cmd {
	cmd := exec.Command("conda", "run", "-n", c.Env, "--live-stream", "python", c.Script)
	cmd.Dir = c.Dir
	return cmd
}

// DockerExec spawns `docker exec <container> <argv...>`.
type DockerExec struct {
	Container string   `json:"container"`
	Argv      []string `json:"argv"`
}

func (DockerExec) Kind() Kind { return KindDockerExec }
func (d DockerExec) buildCmd() *exec.Cmd {
	args := append([]string{"exec", d.Container}, d.Argv...)
	return exec.Command("docker", args...)
}

func joinArgv(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// cmdArgEnvelope is the wire encoding of a CmdArg: {"type": "...", "payload": {...}}.
type cmdArgEnvelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalCmdArg serialises arg with its variant tag, so the wire format
// round-trips through UnmarshalCmdArg regardless of the concrete Go type.
func MarshalCmdArg(arg CmdArg) ([]byte, error) {
	const op = "ec.MarshalCmdArg"

	payload, err := json.Marshal(arg)
	if err != nil {
		return nil, perr.New(op, perr.Deserialisation, err)
	}
	return json.Marshal(cmdArgEnvelope{Type: arg.Kind(), Payload: payload})
}

// UnmarshalCmdArg parses a tagged CmdArg envelope back into the concrete
// variant named by its type tag.
func UnmarshalCmdArg(data []byte) (CmdArg, error) {
	const op = "ec.UnmarshalCmdArg"

	var env cmdArgEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, perr.New(op, perr.Deserialisation, err)
	}

	var arg CmdArg
	switch env.Type {
	case KindPing:
		var v Ping
		arg = &v
	case KindBash:
		var v Bash
		arg = &v
	case KindSsh:
		var v Ssh
		arg = &v
	case KindSshpass:
		var v Sshpass
		arg = &v
	case KindCondaPython:
		var v CondaPython
		arg = &v
	case KindDockerExec:
		var v DockerExec
		arg = &v
	default:
		return nil, perr.New(op, perr.Deserialisation, fmt.Errorf("unknown cmd arg type %q", env.Type))
	}

	if err := json.Unmarshal(env.Payload, arg); err != nil {
		return nil, perr.New(op, perr.Deserialisation, err)
	}

	// Dereference back to a value so callers get the same concrete type
	// MarshalCmdArg would have received (Ping, not *Ping).
	switch v := arg.(type) {
	case *Ping:
		return *v, nil
	case *Bash:
		return *v, nil
	case *Ssh:
		return *v, nil
	case *Sshpass:
		return *v, nil
	case *CondaPython:
		return *v, nil
	case *DockerExec:
		return *v, nil
	default:
		return nil, perr.New(op, perr.Deserialisation, fmt.Errorf("unreachable cmd arg type %q", env.Type))
	}
}
