package domainxml_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vfdriver/internal/domainxml"
	"github.com/javanstorm/vfdriver/internal/testutil"
)

const testUUID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

func TestParse(t *testing.T) {
	cfg, err := domainxml.Parse(testutil.MachineXML("alpha", testUUID, 5900, 5901))
	require.NoError(t, err)

	assert.Equal(t, "alpha", cfg.Name)
	assert.Equal(t, testUUID, cfg.UUID.String())
	assert.Equal(t, 2, cfg.VCPUs)
	assert.Equal(t, 512, cfg.MemoryMB)
	assert.Equal(t, "/boot/vmlinuz-test", cfg.Kernel)
	assert.Equal(t, "console=hvc0", cfg.Cmdline)
	assert.Equal(t, []uint32{5900, 5901}, cfg.VNCPorts)
}

func TestParseGeneratesUUID(t *testing.T) {
	doc := []byte(`<domain type="vf"><name>alpha</name></domain>`)
	cfg, err := domainxml.Parse(doc)
	require.NoError(t, err)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", cfg.UUID.String())
}

func TestParseMissingName(t *testing.T) {
	doc := []byte(`<domain type="vf"><vcpu>2</vcpu></domain>`)
	_, err := domainxml.Parse(doc)
	require.ErrorIs(t, err, domainxml.ErrMissingName)
}

func TestParseBadUUID(t *testing.T) {
	doc := []byte(`<domain type="vf"><name>alpha</name><uuid>nope</uuid></domain>`)
	_, err := domainxml.Parse(doc)
	require.ErrorIs(t, err, domainxml.ErrBadUUID)
}

func TestParseMemoryUnits(t *testing.T) {
	cases := []struct {
		unit   string
		value  uint
		wantMB int
	}{
		{"KiB", 1048576, 1024},
		{"MiB", 512, 512},
		{"GiB", 2, 2048},
		{"", 262144, 256},
	}
	for _, tc := range cases {
		doc := []byte(fmt.Sprintf(`<domain type="vf"><name>alpha</name><memory unit=%q>%d</memory></domain>`,
			tc.unit, tc.value))
		cfg, err := domainxml.Parse(doc)
		require.NoError(t, err, "unit %q", tc.unit)
		assert.Equal(t, tc.wantMB, cfg.MemoryMB, "unit %q", tc.unit)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := domainxml.Parse(testutil.MachineXML("alpha", testUUID, 5900))
	require.NoError(t, err)
	cfg.DiskPath = "/var/lib/alpha.img"
	cfg.EnableNetwork = true
	cfg.MACAddress = "52:54:00:aa:bb:cc"

	out, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := domainxml.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, back.Name)
	assert.Equal(t, cfg.UUID, back.UUID)
	assert.Equal(t, cfg.VCPUs, back.VCPUs)
	assert.Equal(t, cfg.MemoryMB, back.MemoryMB)
	assert.Equal(t, cfg.Kernel, back.Kernel)
	assert.Equal(t, cfg.DiskPath, back.DiskPath)
	assert.True(t, back.EnableNetwork)
	assert.Equal(t, cfg.MACAddress, back.MACAddress)
	assert.Equal(t, cfg.VNCPorts, back.VNCPorts)
}

func TestMachineConfig(t *testing.T) {
	cfg, err := domainxml.Parse(testutil.MachineXML("alpha", testUUID))
	require.NoError(t, err)

	mc := cfg.MachineConfig()
	assert.Equal(t, cfg.VCPUs, mc.CPUs)
	assert.Equal(t, cfg.MemoryMB, mc.MemoryMB)
	assert.Equal(t, cfg.Kernel, mc.Kernel)
	require.NoError(t, mc.Validate())
}

func TestPrivateData(t *testing.T) {
	opt := domainxml.NewOption(t.TempDir())

	// Missing placeholder reads back empty.
	pd, err := opt.LoadPrivateData("alpha")
	require.NoError(t, err)
	assert.Zero(t, pd.VMID)

	want := &domainxml.PrivateData{VMID: 7, DisplayPorts: []uint32{5900}}
	require.NoError(t, opt.SavePrivateData("alpha", want))

	pd, err = opt.LoadPrivateData("alpha")
	require.NoError(t, err)
	assert.Equal(t, want, pd)

	require.NoError(t, opt.RemovePrivateData("alpha"))
	require.NoError(t, opt.RemovePrivateData("alpha"), "remove is idempotent")

	pd, err = opt.LoadPrivateData("alpha")
	require.NoError(t, err)
	assert.Zero(t, pd.VMID)
}

func TestPrivateDataCorrupt(t *testing.T) {
	dir := t.TempDir()
	opt := domainxml.NewOption(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.json"), []byte("{"), 0644))

	_, err := opt.LoadPrivateData("alpha")
	require.Error(t, err)
}
