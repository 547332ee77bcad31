package config

// DefaultConfigYAML is written by `procreport config init`.
const DefaultConfigYAML = `# procreport configuration
#
# Every value can also be set through the environment. Report options use
# PROCREPORT_<OPTION> (PROCREPORT_EVENTS, PROCREPORT_DIRECTORY, ...); other
# keys use PROCREPORT_<SECTION>_<KEY> (PROCREPORT_SERVER_ADDR, ...).

log:
  level: info        # debug, info, warn, error
  format: auto       # auto, text, json

report:
  # Events that write a report, joined with '+':
  # exception, fatalerror, signal, apicall
  events: exception+fatalerror+signal+apicall
  # Abort with a core dump after a fatal error (yes) or exit with status 1 (no)
  coredump: "yes"
  # Signal that requests a report: SIGUSR2 or SIGQUIT
  signal: SIGUSR2
  # Fixed report file name, or stdout / stderr. Empty generates
  # ProcReport.YYYYMMDD.HHMMSS.<pid>.<seq>.txt
  filename: ""
  # Directory for report files. Empty uses the working directory.
  directory: ""
  verbose: "no"

engine:
  unhandled: exit    # exit, continue
  queue_size: 256

server:
  addr: 127.0.0.1:7190
  cors_origins: []
  read_timeout: 15s
  write_timeout: 60s
  shutdown_timeout: 10s
  event_buffer: 64

catalog:
  enabled: true
  path: .procreport/catalog.db
  # Generated reports beyond this count are deleted. 0 keeps everything.
  max_files: 50

monitor:
  enabled: true
  interval: 30s
  fd_threshold_percent: 80
  goroutine_threshold: 10000
  memory_threshold_mb: 4096
  # Raise a fatal error report when the heap exceeds this size. 0 disables.
  heap_limit_mb: 0
  history_size: 120
`
