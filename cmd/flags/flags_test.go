package flags

import (
	"testing"

	"github.com/inaetics/node-wiring-go/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestConfigOverrides(t *testing.T) {
	var got map[string]any
	app := &cli.App{
		Flags: ConfigFlags,
		Action: func(cCtx *cli.Context) error {
			got = ConfigOverrides(cCtx)
			return nil
		},
	}

	require.NoError(t, app.Run([]string{"nodewiring", "--ca-host", "ca.local", "--etcd-port", "2379", "--zone", "zone-a"}))
	assert.Equal(t, map[string]any{
		config.KeyCAHost:   "ca.local",
		config.KeyEtcdPort: "2379",
		config.KeyZone:     "zone-a",
	}, got)
}

func TestConfigFlagsHaveKeys(t *testing.T) {
	for _, f := range ConfigFlags {
		_, ok := configKeys[f.Names()[0]]
		assert.True(t, ok, f.Names()[0])
	}
}
