package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir        string
	Port              string
	CycleInterval     int // seconds
	SourceDelay       int // milliseconds between sources
	FetchTimeout      int // seconds per source fetch
	MaxItemsPerSource int
	ResolveBatchSize  int
	TimeWindowHours   int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
