package diagnostics

import (
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo writes the environment, resource limits, host facts and the
// modules linked into the binary.
func (r *TextRenderer) SystemInfo(w io.Writer) error {
	s := &sectionWriter{w: w}
	s.title("System Information")

	r.writeEnvironment(s)

	s.line("")
	s.printf("%-24s %20s %20s\n", "Resource limits", "soft limit", "hard limit")
	for _, l := range resourceLimits() {
		s.printf("%-24s %20s %20s\n", l.name, l.soft, l.hard)
	}

	s.line("")
	r.writeHost(s)

	s.line("")
	s.line("Loaded modules:")
	writeModules(s)

	s.line("")
	s.line("Shared objects:")
	writeSharedObjects(s)
	return s.err
}

func (r *TextRenderer) writeEnvironment(s *sectionWriter) {
	env := r.environ()
	sorted := make([]string, 0, len(env))
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		if key == "" {
			continue
		}
		sorted = append(sorted, key+"="+r.sanitizer.SanitizeEnv(key, value))
	}
	sort.Strings(sorted)

	s.line("Environment variables:")
	for _, kv := range sorted {
		s.printf("  %s\n", kv)
	}
}

func (r *TextRenderer) writeHost(s *sectionWriter) {
	info := r.host.Collect()
	s.printf("Host: %s\n", info.Hostname)
	if !info.BootTime.IsZero() {
		s.printf("Boot time: %s\n", info.BootTime.Format(timeLayout))
	}
	s.printf("CPU: %s (%d cores, %d threads)\n", orUnknown(info.CPUModel), info.CPUCores, info.CPUThreads)
	s.printf("Load average: %.2f %.2f %.2f\n", info.LoadAvg1, info.LoadAvg5, info.LoadAvg15)
	s.printf("Memory: %s total, %s available (%.1f%% used)\n",
		humanize.IBytes(info.MemTotal), humanize.IBytes(info.MemAvailable), info.MemPercent)
	if info.SwapTotal > 0 {
		s.printf("Swap: %s total, %s used\n", humanize.IBytes(info.SwapTotal), humanize.IBytes(info.SwapUsed))
	}
	if info.DiskTotal > 0 {
		s.printf("Disk %s: %s total, %s free (%.1f%% used)\n", info.DiskPath,
			humanize.IBytes(info.DiskTotal), humanize.IBytes(info.DiskFree), info.DiskPercent)
	}
	for _, g := range info.GPUs {
		s.printf("GPU %d: %s\n", g.Index, g.Name)
	}
}

func writeModules(s *sectionWriter) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		s.line("  build information unavailable")
		return
	}
	s.printf("  %s %s\n", bi.Main.Path, orUnknown(bi.Main.Version))
	for _, dep := range bi.Deps {
		if dep.Replace != nil {
			s.printf("  %s %s => %s %s\n", dep.Path, dep.Version, dep.Replace.Path, dep.Replace.Version)
			continue
		}
		s.printf("  %s %s\n", dep.Path, dep.Version)
	}
}

// writeSharedObjects lists the native libraries mapped into the process. A
// statically linked binary maps none.
func writeSharedObjects(s *sectionWriter) {
	p, err := process.NewProcess(int32(os.Getpid())) // #nosec G115 -- pids fit int32
	if err != nil {
		s.printf("  unavailable: %v\n", err)
		return
	}
	maps, err := p.MemoryMaps(false)
	if err != nil {
		s.printf("  unavailable: %v\n", err)
		return
	}
	var paths []string
	if maps != nil {
		paths = sharedObjectPaths(*maps)
	}
	if len(paths) == 0 {
		s.line("  none")
		return
	}
	for _, path := range paths {
		s.printf("  %s\n", path)
	}
}

// sharedObjectPaths returns the distinct file-backed library mappings in
// sorted order.
func sharedObjectPaths(maps []process.MemoryMapsStat) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range maps {
		if !filepath.IsAbs(m.Path) || !isSharedObject(filepath.Base(m.Path)) {
			continue
		}
		if _, ok := seen[m.Path]; ok {
			continue
		}
		seen[m.Path] = struct{}{}
		out = append(out, m.Path)
	}
	sort.Strings(out)
	return out
}

func isSharedObject(name string) bool {
	return strings.HasSuffix(name, ".so") ||
		strings.Contains(name, ".so.") ||
		strings.HasSuffix(name, ".dylib")
}

type limit struct {
	name       string
	soft, hard string
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
