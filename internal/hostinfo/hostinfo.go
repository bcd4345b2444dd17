// Package hostinfo collects hardware descriptors of the benchmark host.
// The descriptors are attached as tags to tracked runs so results can be
// compared across machines.
package hostinfo

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	log "github.com/sirupsen/logrus"
)

// memoryItems are the dmidecode type 17 fields exported as tags, in output
// order.
var memoryItems = []string{
	"Size", "Speed", "Manufacturer", "Type", "Configured Memory Speed", "Form Factor",
}

// unitSuffixes are units stripped from dmidecode values and appended to the
// tag key instead, e.g. "Speed: 2933 MT/s" becomes mem_info_speed_MT_per_s=2933.
var unitSuffixes = []string{"MB", "MT/s"}

// Collector gathers host hardware tags.
type Collector struct {
	log *log.Entry
	run func(args ...string) ([]byte, error)
}

// New returns a Collector that shells out to dmidecode and reads the rest
// through gopsutil.
func New() *Collector {
	return &Collector{
		log: log.WithField("component", "hostinfo"),
		run: func(args ...string) ([]byte, error) {
			// #nosec G204
			return exec.Command(args[0], args[1:]...).Output()
		},
	}
}

// Tags returns all host descriptor tags: memory module details first, then
// CPU and total RAM.
func (c *Collector) Tags() []string {
	tags := c.MemoryTags()
	tags = append(tags, c.cpuTags()...)
	tags = append(tags, c.ramTags()...)
	return tags
}

// MemoryTags reads the first memory module's details from dmidecode. Items
// dmidecode does not report are skipped. dmidecode needs root; when it cannot
// run at all the tags are skipped with a warning rather than failing the run.
func (c *Collector) MemoryTags() []string {
	out, err := c.run("dmidecode", "--type", "17")
	if err != nil {
		c.log.WithError(err).Warn("cannot run dmidecode, skipping memory tags")
		return nil
	}

	lines := strings.Split(string(out), "\n")
	tags := make([]string, 0, len(memoryItems))
	for _, item := range memoryItems {
		value, ok := firstValue(lines, item)
		if !ok {
			c.log.Warnf("dmidecode reports no %q, skipping", item)
			continue
		}
		key := "mem_info_" + strings.ReplaceAll(strings.ToLower(item), " ", "_")
		for _, unit := range unitSuffixes {
			if strings.Contains(value, unit) {
				value = strings.TrimSpace(strings.ReplaceAll(value, unit, ""))
				key += "_" + strings.ReplaceAll(unit, "/", "_per_")
			}
		}
		tags = append(tags, fmt.Sprintf("%s=%s", key, value))
	}
	return tags
}

// firstValue returns the value of the first dmidecode line mentioning item,
// mirroring a `grep | head -n 1` over the output.
func firstValue(lines []string, item string) (string, bool) {
	for _, line := range lines {
		if !strings.Contains(line, item) {
			continue
		}
		value := strings.TrimSpace(line)
		value = strings.Replace(value, item+": ", "", 1)
		return value, true
	}
	return "", false
}

func (c *Collector) cpuTags() []string {
	infos, err := cpu.Info()
	if err != nil {
		c.log.WithError(err).Warn("cannot read CPU info, skipping CPU tags")
		return nil
	}
	if len(infos) == 0 {
		return nil
	}

	cores := int32(0)
	for _, info := range infos {
		cores += info.Cores
	}
	model := strings.ReplaceAll(infos[0].ModelName, ",", " ")
	return []string{
		fmt.Sprintf("cpu_model=%s", model),
		fmt.Sprintf("cpu_cores=%d", cores),
	}
}

func (c *Collector) ramTags() []string {
	vm, err := mem.VirtualMemory()
	if err != nil {
		c.log.WithError(err).Warn("cannot read memory info, skipping RAM tags")
		return nil
	}
	return []string{fmt.Sprintf("total_ram=%s", units.HumanSize(float64(vm.Total)))}
}
