package diagnostics

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/hugo-lorenzo-mato/procreport/internal/logging"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

const (
	lineWidth  = 80
	timeLayout = "2006/01/02 15:04:05"
)

// TextRenderer writes reports as plain text with fixed-width section banners.
type TextRenderer struct {
	version   string
	host      *HostCollector
	monitor   *ResourceMonitor
	sanitizer *logging.Sanitizer
	args      func() []string
	environ   func() []string
}

// RendererOption configures a TextRenderer.
type RendererOption func(*TextRenderer)

// WithVersion sets the application version printed in the versions section.
func WithVersion(v string) RendererOption {
	return func(r *TextRenderer) { r.version = v }
}

// WithHostCollector sets the source of the system information section.
func WithHostCollector(c *HostCollector) RendererOption {
	return func(r *TextRenderer) { r.host = c }
}

// WithMonitor adds the monitor's history and trend to the heap section.
func WithMonitor(m *ResourceMonitor) RendererOption {
	return func(r *TextRenderer) { r.monitor = m }
}

// WithSanitizer sets the redaction applied to the command line and
// environment.
func WithSanitizer(s *logging.Sanitizer) RendererOption {
	return func(r *TextRenderer) { r.sanitizer = s }
}

// WithProcessArgs overrides the source of the command line, for tests.
func WithProcessArgs(args func() []string) RendererOption {
	return func(r *TextRenderer) { r.args = args }
}

// WithEnviron overrides the source of environment variables, for tests.
func WithEnviron(env func() []string) RendererOption {
	return func(r *TextRenderer) { r.environ = env }
}

// NewTextRenderer creates a renderer.
func NewTextRenderer(opts ...RendererOption) *TextRenderer {
	r := &TextRenderer{
		version:   "dev",
		sanitizer: logging.NewSanitizer(),
		args:      func() []string { return os.Args },
		environ:   os.Environ,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.host == nil {
		r.host = NewHostCollector("")
	}
	return r
}

var _ report.Renderer = (*TextRenderer)(nil)

// sectionWriter accumulates the first write error so section bodies can be
// written without checking every line.
type sectionWriter struct {
	w   io.Writer
	err error
}

func (s *sectionWriter) printf(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format, args...)
}

func (s *sectionWriter) line(text string) {
	s.printf("%s\n", text)
}

func (s *sectionWriter) banner() {
	s.line(strings.Repeat("=", lineWidth))
}

func (s *sectionWriter) title(name string) {
	t := "==== " + name + " "
	if pad := lineWidth - len(t); pad > 0 {
		t += strings.Repeat("=", pad)
	}
	s.printf("\n%s\n\n", t)
}

// Header writes the opening banner and the identification block.
func (r *TextRenderer) Header(w io.Writer, h report.Header) error {
	s := &sectionWriter{w: w}
	s.banner()
	s.printf("==== Process Report %s\n", strings.Repeat("=", lineWidth-len("==== Process Report ")))
	s.banner()
	s.line("")
	s.printf("Event: %s, location: %q\n", h.Message, h.Location)
	s.printf("Trigger: %s\n", h.Event)
	s.printf("Filename: %s\n", h.Filename)
	s.printf("Report ID: %s\n", h.ReportID)
	s.printf("Dump event time:  %s\n", h.DumpTime.Format(timeLayout))
	s.printf("Module load time: %s\n", h.LoadTime.Format(timeLayout))
	s.printf("Process ID: %d\n", h.PID)
	return s.err
}

// CommandLine writes the process arguments, redacting credentials.
func (r *TextRenderer) CommandLine(w io.Writer) error {
	s := &sectionWriter{w: w}
	s.title("Command Line")
	src := r.args()
	args := make([]string, len(src))
	for i, a := range src {
		args[i] = r.sanitizer.Sanitize(a)
	}
	s.line(strings.Join(args, " "))
	return s.err
}

// Versions writes the application, runtime and operating system versions.
func (r *TextRenderer) Versions(w io.Writer) error {
	s := &sectionWriter{w: w}
	s.title("Versions")
	s.printf("procreport: %s\n", r.version)
	s.printf("go: %s\n", runtime.Version())
	s.printf("compiler: %s\n", runtime.Compiler)
	s.printf("platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if bi, ok := debug.ReadBuildInfo(); ok {
		s.printf("module: %s %s\n", bi.Main.Path, bi.Main.Version)
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision", "vcs.time", "vcs.modified", "CGO_ENABLED", "GOAMD64", "GOARM64":
				s.printf("%s: %s\n", setting.Key, setting.Value)
			}
		}
	}

	info := r.host.Collect()
	if info.Platform != "" {
		s.printf("os: %s %s\n", info.Platform, info.PlatformVersion)
	}
	if info.KernelVersion != "" {
		s.printf("kernel: %s (%s)\n", info.KernelVersion, info.KernelArch)
	}
	return s.err
}

// Footer writes the closing banner.
func (r *TextRenderer) Footer(w io.Writer) error {
	s := &sectionWriter{w: w}
	s.line("")
	s.banner()
	s.printf("==== End of Report %s\n", strings.Repeat("=", lineWidth-len("==== End of Report ")))
	s.banner()
	return s.err
}
