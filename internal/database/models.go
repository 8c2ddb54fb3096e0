package database

// Run is one stored research run.
type Run struct {
	ID             string
	Hypothesis     string
	Mode           string
	Scorer         string
	Sources        []string
	Target         int
	Status         string // "running", "done" or "failed"
	Error          *string
	Fetched        int
	PassedQuality  int
	PassedKeyword  int
	PassedDomain   int
	CoreCount      int
	RelatedCount   int
	RecoveredCount int
	ClusterCount   int
	Boosted        bool
	ReportMarkdown *string
	StartedAt      *string
	FinishedAt     *string
}

// Run statuses.
const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// RunSignal is an accepted item stored with its run.
type RunSignal struct {
	ItemID     string
	Kind       string
	Container  string
	Title      string
	Excerpt    string
	Permalink  string
	Tier       string
	Recovered  bool
	Weight     float64
	Similarity float64
	CreatedAt  string
}

// RunCluster is a theme stored with its run.
type RunCluster struct {
	ClusterID string
	Label     string
	Size      int
	Cohesion  float64
	MemberIDs []string
	Excerpts  []string
}

// RunDecision is one audit record stored with its run.
type RunDecision struct {
	ItemID  string
	Stage   string
	Verdict string
	Tier    string
	Reason  string
}

// StageCount is the number of decisions for one stage and verdict.
type StageCount struct {
	Stage   string
	Verdict string
	Count   int
}

// Stats contains aggregate database statistics.
type Stats struct {
	CachedEmbeddings int
	EmbeddingModels  int
	Runs             int
	FailedRuns       int
	StoredSignals    int
	LastRunAt        *string
}
