package config

// Constants defining default values for application configuration
const (
	DefaultDBPath   = "./reader.db"
	DefaultOPMLPath = "./subscriptions.opml"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultWorkerCount = 0  // 0 means use runtime.NumCPU()
	DefaultInterval    = 30 // Minutes between fetch runs

	// Presented to legacy sync clients as the username half of the
	// api key; the app-password half is generated on first use.
	DefaultFeverUsername = "reader"

	DefaultLogLevel = "info"
)
