package log

// Component names used with WithComponent so related log lines can be
// filtered together.
const (
	ComponentApp       = "app"
	ComponentScheduler = "scheduler"
	ComponentNotifier  = "notifier"
)
