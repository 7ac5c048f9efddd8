package routes

var (
	BearerAuth = []map[string][]string{
		{"bearer": {}},
	}
)

type Tag string

const (
	TagHealth    Tag = "health"
	TagProcesses Tag = "processes"
	TagJobs      Tag = "jobs"
)

func (t Tag) String() string { return string(t) }
