package diagnostics

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// GPU is a graphics adapter found by hardware discovery.
type GPU struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// HostInfo holds machine-wide state for the system information section.
type HostInfo struct {
	Hostname        string    `json:"hostname"`
	OS              string    `json:"os"`
	Platform        string    `json:"platform"`
	PlatformVersion string    `json:"platform_version"`
	KernelVersion   string    `json:"kernel_version"`
	KernelArch      string    `json:"kernel_arch"`
	BootTime        time.Time `json:"boot_time"`

	CPUModel   string  `json:"cpu_model"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	MemTotal     uint64  `json:"mem_total"`
	MemAvailable uint64  `json:"mem_available"`
	MemPercent   float64 `json:"mem_percent"`
	SwapTotal    uint64  `json:"swap_total"`
	SwapUsed     uint64  `json:"swap_used"`

	DiskPath    string  `json:"disk_path"`
	DiskTotal   uint64  `json:"disk_total"`
	DiskFree    uint64  `json:"disk_free"`
	DiskPercent float64 `json:"disk_percent"`

	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	GPUs []GPU `json:"gpus,omitempty"`
}

// HostCollector gathers HostInfo. Static facts (CPU model, host identity,
// GPUs) are read once; usage figures are read on every call.
type HostCollector struct {
	mu        sync.Mutex
	diskPath  string
	lastTotal float64
	lastIdle  float64

	static     bool
	staticInfo HostInfo
}

// NewHostCollector creates a collector reporting disk usage for diskPath, or
// for the root filesystem when diskPath is empty.
func NewHostCollector(diskPath string) *HostCollector {
	if diskPath == "" {
		diskPath = rootDiskPath()
	}
	return &HostCollector{diskPath: diskPath}
}

// Collect gathers current host state. Sources that fail leave their fields zero.
func (c *HostCollector) Collect() HostInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.static {
		c.collectStatic()
		c.static = true
	}
	info := c.staticInfo
	info.GPUs = append([]GPU(nil), c.staticInfo.GPUs...)

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemTotal = vm.Total
		info.MemAvailable = vm.Available
		info.MemPercent = vm.UsedPercent
	}
	if sw, err := mem.SwapMemory(); err == nil {
		info.SwapTotal = sw.Total
		info.SwapUsed = sw.Used
	}

	info.DiskPath = c.diskPath
	if usage, err := disk.Usage(c.diskPath); err == nil {
		info.DiskTotal = usage.Total
		info.DiskFree = usage.Free
		info.DiskPercent = usage.UsedPercent
	}

	if avg, err := load.Avg(); err == nil {
		info.LoadAvg1 = avg.Load1
		info.LoadAvg5 = avg.Load5
		info.LoadAvg15 = avg.Load15
	}

	info.CPUPercent = c.cpuPercent()
	return info
}

func (c *HostCollector) collectStatic() {
	s := &c.staticInfo
	if hi, err := host.Info(); err == nil {
		s.Hostname = hi.Hostname
		s.OS = hi.OS
		s.Platform = hi.Platform
		s.PlatformVersion = hi.PlatformVersion
		s.KernelVersion = hi.KernelVersion
		s.KernelArch = hi.KernelArch
		// #nosec G115 -- boot time in seconds fits int64
		s.BootTime = time.Unix(int64(hi.BootTime), 0)
	} else {
		s.Hostname, _ = os.Hostname()
		s.OS = runtime.GOOS
		s.KernelArch = runtime.GOARCH
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		s.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if n, err := cpu.Counts(false); err == nil {
		s.CPUCores = n
	}
	if n, err := cpu.Counts(true); err == nil {
		s.CPUThreads = n
	}
	s.GPUs = discoverGPUs()
}

// cpuPercent returns machine CPU utilization since the previous call, or 0 on
// the first call.
func (c *HostCollector) cpuPercent() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}
	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	var pct float64
	if c.lastTotal > 0 {
		if dt := total - c.lastTotal; dt > 0 {
			pct = (1 - (idle-c.lastIdle)/dt) * 100
		}
	}
	c.lastTotal = total
	c.lastIdle = idle
	return pct
}

func discoverGPUs() []GPU {
	info, err := ghw.GPU()
	if err != nil || info == nil {
		return nil
	}

	gpus := make([]GPU, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		var parts []string
		if d := card.DeviceInfo; d != nil {
			if d.Vendor != nil && d.Vendor.Name != "" {
				parts = append(parts, d.Vendor.Name)
			}
			if d.Product != nil && d.Product.Name != "" {
				parts = append(parts, d.Product.Name)
			}
		}
		name := strings.Join(parts, " ")
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, GPU{Index: card.Index, Name: name})
	}
	return gpus
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
