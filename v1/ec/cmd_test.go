package ec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jacobbishopxy/pqx/v1/ec"
)

func TestCmdArgRoundTrip(t *testing.T) {
	cases := []ec.CmdArg{
		ec.Ping{Addr: "127.0.0.1"},
		ec.Bash{Argv: []string{"echo", "hi"}},
		ec.Ssh{Ip: "10.0.0.1", User: "root", Argv: []string{"uptime"}},
		ec.Sshpass{Ip: "10.0.0.1", User: "root", Pass: "secret", Argv: []string{"uptime"}},
		ec.CondaPython{Env: "py310", Dir: "/x", Script: "ok.py"},
		ec.DockerExec{Container: "worker-1", Argv: []string{"ls", "-la"}},
	}

	for _, c := range cases {
		data, err := ec.MarshalCmdArg(c)
		require.NoError(t, err)

		got, err := ec.UnmarshalCmdArg(data)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestUnmarshalCmdArgUnknownType(t *testing.T) {
	_, err := ec.UnmarshalCmdArg([]byte(`{"type":"nope","payload":{}}`))
	assert.Error(t, err)
}
