package hostinfo

import (
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const dmidecodeOut = `# dmidecode 3.3
Getting SMBIOS data from sysfs.
SMBIOS 3.2.0 present.

Handle 0x1100, DMI type 17, 84 bytes
Memory Device
	Array Handle: 0x1000
	Error Information Handle: Not Provided
	Total Width: 72 bits
	Data Width: 64 bits
	Size: 32768 MB
	Form Factor: DIMM
	Set: 1
	Locator: A1
	Bank Locator: Not Specified
	Type: DDR4
	Type Detail: Synchronous Registered (Buffered)
	Speed: 2933 MT/s
	Manufacturer: Samsung
	Serial Number: 12345678
	Asset Tag: 01190932
	Part Number: M393A4K40CB2-CVF
	Rank: 2
	Configured Memory Speed: 2933 MT/s
	Minimum Voltage: 1.2 V
	Maximum Voltage: 1.2 V
	Configured Voltage: 1.2 V
`

func fakeCollector(out []byte, err error) *Collector {
	return &Collector{
		log: log.WithField("component", "hostinfo"),
		run: func(_ ...string) ([]byte, error) {
			return out, err
		},
	}
}

func TestMemoryTags(t *testing.T) {
	tags := fakeCollector([]byte(dmidecodeOut), nil).MemoryTags()

	require.Equal(t, []string{
		"mem_info_size_MB=32768",
		"mem_info_speed_MT_per_s=2933",
		"mem_info_manufacturer=Samsung",
		"mem_info_type=DDR4",
		"mem_info_configured_memory_speed_MT_per_s=2933",
		"mem_info_form_factor=DIMM",
	}, tags)
}

func TestMemoryTagsDmidecodeUnavailable(t *testing.T) {
	tags := fakeCollector(nil, errors.New("exec: \"dmidecode\": executable file not found")).MemoryTags()
	require.Nil(t, tags)
}

func TestMemoryTagsSkipsMissingItems(t *testing.T) {
	tags := fakeCollector([]byte("Memory Device\n\tSize: 16384 MB\n"), nil).MemoryTags()
	require.Equal(t, []string{"mem_info_size_MB=16384"}, tags)
}
