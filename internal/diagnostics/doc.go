// Package diagnostics renders the content of process reports and samples the
// resources they describe.
//
// The package has three parts:
//
//   - TextRenderer: implements report.Renderer. Each section starts with a
//     fixed-width "====" banner and is written in one call so the report
//     pipeline can flush between sections.
//
//   - ResourceMonitor: periodically samples descriptors, goroutines and heap
//     usage. Its history is printed in the heap section, and a configured heap
//     limit raises an engine fatal error with location "HeapLimitMonitor".
//
//   - HostCollector: machine facts from gopsutil and ghw for the versions and
//     system information sections.
//
// Environment variables and command line arguments pass through the logging
// sanitizer before they are written, so credentials do not end up in report
// files.
package diagnostics
