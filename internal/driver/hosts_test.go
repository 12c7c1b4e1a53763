package driver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/lampctl/internal/model"
)

func newTestHostsDriver(t *testing.T, content string) (*HostsDriver, string) {
	t.Helper()
	cfg := newTestConfig(t)
	if content != "" {
		writeFile(t, cfg.HostsFile, content)
	}
	return NewHostsDriver(zerolog.Nop(), cfg.HostsFile, "127.0.0.1"), cfg.HostsFile
}

func hostsSpec(domain string) Spec {
	return Spec{Site: model.Site{Domain: domain}}
}

func TestHostsDriver_ApplyAppends(t *testing.T) {
	d, path := newTestHostsDriver(t, "127.0.0.1 localhost")

	res, err := d.Apply(context.Background(), hostsSpec("shop.test"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.Equal(t, "127.0.0.1 localhost\n127.0.0.1 shop.test\n", readFile(t, path))
}

func TestHostsDriver_ApplyIsIdempotent(t *testing.T) {
	d, path := newTestHostsDriver(t, "127.0.0.1\tlocalhost shop.test # added\n")

	res, err := d.Apply(context.Background(), hostsSpec("shop.test"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, res.Status)
	assert.Equal(t, "127.0.0.1\tlocalhost shop.test # added\n", readFile(t, path))
}

func TestHostsDriver_ApplyDifferentIPIsNotEquivalent(t *testing.T) {
	d, path := newTestHostsDriver(t, "10.0.0.5 shop.test\n")

	res, err := d.Apply(context.Background(), hostsSpec("shop.test"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.Contains(t, readFile(t, path), "127.0.0.1 shop.test\n")
}

func TestHostsDriver_ApplyCreatesMissingFile(t *testing.T) {
	d, path := newTestHostsDriver(t, "")

	_, err := d.Apply(context.Background(), hostsSpec("shop.test"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 shop.test\n", readFile(t, path))
}

func TestHostsDriver_DryRunDoesNotWrite(t *testing.T) {
	d, path := newTestHostsDriver(t, "127.0.0.1 localhost\n")

	spec := hostsSpec("shop.test")
	spec.DryRun = true
	res, err := d.Apply(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, res.Status)
	assert.Contains(t, res.Detail, "would append")
	assert.Equal(t, "127.0.0.1 localhost\n", readFile(t, path))
}

func TestHostsDriver_RemoveExactMatchesOnly(t *testing.T) {
	d, path := newTestHostsDriver(t, "127.0.0.1 localhost\n"+
		"127.0.0.1 shop.test\n"+
		"127.0.0.1 myshop.test\n"+
		"127.0.0.1 shop.test.internal\n"+
		"10.0.0.1 api shop.test\n"+
		"# 127.0.0.1 shop.test\n")

	res, err := d.Remove(context.Background(), hostsSpec("shop.test"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.Equal(t, "127.0.0.1 localhost\n"+
		"127.0.0.1 myshop.test\n"+
		"127.0.0.1 shop.test.internal\n"+
		"# 127.0.0.1 shop.test\n", readFile(t, path))
}

func TestHostsDriver_RemoveAbsentIsSkipped(t *testing.T) {
	d, _ := newTestHostsDriver(t, "127.0.0.1 localhost\n")

	res, err := d.Remove(context.Background(), hostsSpec("shop.test"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, res.Status)
}

func TestHostsDriver_Probe(t *testing.T) {
	d, _ := newTestHostsDriver(t, "127.0.0.1 shop.test www.shop.test\n")

	p, err := d.Probe(context.Background(), hostsSpec("www.shop.test"))
	require.NoError(t, err)
	assert.True(t, p.Exists)

	p, err = d.Probe(context.Background(), hostsSpec("shop"))
	require.NoError(t, err)
	assert.False(t, p.Exists)
}
