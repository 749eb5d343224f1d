package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gomlx/gocompute/compute"
	"github.com/gomlx/gocompute/host"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// execute runs the root command with the given arguments and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDevicesCommand(t *testing.T) {
	out, err := execute(t, "--backend", host.Name, "devices", "--format=text")
	require.NoError(t, err)
	require.Contains(t, out, `Backend "host": 1 device(s)`)
	require.Contains(t, out, "\tname: host-cpu\n")
	require.Contains(t, out, "\tversion: 2.0\n")

	out, err = execute(t, "--backend", host.Name, "devices", "--format=json")
	require.NoError(t, err)
	require.Contains(t, out, `"name"`)
	require.Contains(t, out, `"host-cpu"`)

	_, err = execute(t, "--backend", host.Name, "devices", "--format=yaml")
	require.ErrorContains(t, err, `unknown --format="yaml"`)

	_, err = execute(t, "--backend", "no-such-backend", "devices", "--format=text")
	require.ErrorContains(t, err, "registered backends")
}

func TestFormatAttributes(t *testing.T) {
	attrs := compute.NamedValuesMap{"name": "dev", "max_work_group_size": int64(64), "svm": true}
	text, err := formatAttributes(attrs, "text")
	require.NoError(t, err)
	require.Equal(t, "\tmax_work_group_size: 64\n\tname: dev\n\tsvm: true\n", text)

	encoded, err := formatAttributes(attrs, "json")
	require.NoError(t, err)
	var s structpb.Struct
	require.NoError(t, protojson.Unmarshal([]byte(encoded), &s))
	require.Equal(t, "dev", s.Fields["name"].GetStringValue())
	require.Equal(t, 64.0, s.Fields["max_work_group_size"].GetNumberValue())
	require.True(t, s.Fields["svm"].GetBoolValue())

	encoded, err = formatAttributes(attrs, "prototext")
	require.NoError(t, err)
	require.Contains(t, encoded, `"dev"`)
	require.Contains(t, encoded, "string_value")
}

func TestSmokeCommand(t *testing.T) {
	out, err := execute(t, "--backend", host.Name, "smoke", "--size=64")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "#0: host-cpu"), lines[0])
	require.True(t, strings.HasSuffix(lines[0], ": ok"), lines[0])

	_, err = execute(t, "--backend", host.Name, "smoke", "--size=0")
	require.ErrorContains(t, err, "--size must be positive")
}
