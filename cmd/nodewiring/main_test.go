package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/inaetics/node-wiring-go/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAdvertise(t *testing.T) {
	endpoints, err := parseAdvertise([]string{"wire-1=https://10.0.0.1:8443/wire-1", " wire-2 = http://host/x=y "})
	require.NoError(t, err)
	require.Len(t, endpoints, 2)

	assert.Equal(t, "wire-1", endpoints[0].WireID())
	assert.Equal(t, "https://10.0.0.1:8443/wire-1", endpoints[0].URL())
	assert.Equal(t, "wire-2", endpoints[1].WireID())
	assert.Equal(t, "http://host/x=y", endpoints[1].Properties[interfaces.WiringURLKey])
}

func TestParseAdvertise_Invalid(t *testing.T) {
	for _, v := range []string{"", "wire-1", "=http://host", "wire-1="} {
		_, err := parseAdvertise([]string{v})
		assert.Error(t, err, v)
	}
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	reg := registry.New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	_, err := reg.RegisterListener("", &logListener{log: slog.New(slog.NewTextHandler(&buf, nil))})
	require.NoError(t, err)

	node := interfaces.NewNodeDescription("n1", "z1", nil)
	node.Endpoints = append(node.Endpoints, interfaces.NewWiringEndpointDescription("wire-1", map[string]string{
		interfaces.WiringURLKey: "https://10.0.0.1:8443/wire-1",
	}))
	require.NoError(t, reg.AddNode(node))
	reg.Close()

	out := buf.String()
	assert.Contains(t, out, `msg="Wiring endpoint added" wireId=wire-1 url=https://10.0.0.1:8443/wire-1`)
	assert.Contains(t, out, `msg="Wiring endpoint removed" wireId=wire-1`)
}
