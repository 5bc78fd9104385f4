// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package base_test

import (
	"testing"
	"time"

	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/sparrow.yaml", []byte(`
listen-http-addr: ":8080"
memory-budget: 256 MiB
arena:
  chunk-size: 8 KiB
scheduler:
  kind: static
  backends:
    - a.example:9000
    - b.example:9000
  resolve-timeout: 2s
`), 0644))

	cfg, err := base.LoadConfig(fs, "/etc/sparrow.yaml")
	require.NoError(t, err)
	expected := base.DefaultConfig()
	expected.ListenHTTPAddr = ":8080"
	expected.MemoryBudget = 256 << 20
	expected.Arena.ChunkSize = 8 << 10
	expected.Scheduler.Backends = []string{"a.example:9000", "b.example:9000"}
	expected.Scheduler.ResolveTimeout = 2 * time.Second
	require.Equal(t, expected, cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, tc := range []struct {
		contents string
		err      string
	}{
		{"bogus: 1\n", "field bogus not found"},
		{"memory-budget: lots\n", "line 1"},
		{"arena:\n  chunk-size: 2 MiB\n", "smaller than chunk-size"},
		{"scheduler:\n  kind: gossip\n", `unknown scheduler kind "gossip"`},
		{"scheduler:\n  kind: heartbeat\n  backends: [a:1]\n", "not used by the heartbeat scheduler"},
	} {
		require.NoError(t, afero.WriteFile(fs, "c.yaml", []byte(tc.contents), 0644))
		_, err := base.LoadConfig(fs, "c.yaml")
		require.ErrorContains(t, err, tc.err, tc.contents)
	}

	_, err := base.LoadConfig(fs, "missing.yaml")
	require.Error(t, err)
}

func TestByteSizeYAML(t *testing.T) {
	out, err := yaml.Marshal(base.DefaultConfig().Arena)
	require.NoError(t, err)
	require.Equal(t, "chunk-size: 4.0 KiB\nmax-chunk-size: 1.0 MiB\n", string(out))
}
