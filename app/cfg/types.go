package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	AccountsFile      string
	SecretsFile       string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	FlushInterval     int
	APIAccessKey      string

	// Provider HTTP configuration
	UserAgent      string
	RequestTimeout int
	PageSize       int

	// Provider sync tuning
	FeedbinBatchSize      int
	FeedlyBatchSize       int
	NewsBlurBatchSize     int
	FeedWranglerBatchSize int
	SyncLookbackDays      int
	SyncBackdateHours     int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
