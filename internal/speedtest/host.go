package speedtest

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// Host identifies the machine a measurement was taken from.
type Host struct {
	Hostname   string
	Platform   string
	KernelArch string
}

var hostInfo = host.Info

// DescribeHost returns best-effort host details, falling back to the
// runtime's view when gopsutil cannot read them.
func DescribeHost() Host {
	h := Host{Platform: runtime.GOOS, KernelArch: runtime.GOARCH}
	if name, err := os.Hostname(); err == nil {
		h.Hostname = name
	}

	info, err := hostInfo()
	if err != nil || info == nil {
		return h
	}
	if info.Hostname != "" {
		h.Hostname = info.Hostname
	}
	if info.Platform != "" {
		h.Platform = info.Platform
		if info.PlatformVersion != "" {
			h.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion) // e.g. "debian 12.5"
		}
	}
	if info.KernelArch != "" {
		h.KernelArch = info.KernelArch
	}
	return h
}
