package domain

// VisualizationNotice is published on the partial and complete update channels.
type VisualizationNotice struct {
	UserID            string              `json:"userId"`
	VisualizationData VisualizationRecord `json:"visualizationData"`
	Timestamp         int64               `json:"timestamp"`
}

// PartialErrorNotice lets a UI waiting on a partial step leave its loading state.
type PartialErrorNotice struct {
	UserID     string `json:"userId"`
	Query      string `json:"query"`
	StepNumber int    `json:"stepNumber"`
	Error      string `json:"error"`
	Attempt    int    `json:"attempt"`
	Final      bool   `json:"final"`
	Timestamp  int64  `json:"timestamp"`
}

type CancellationNotice struct {
	UserID      string `json:"userId"`
	CancelCount int    `json:"cancelCount"`
	Timestamp   int64  `json:"timestamp"`
}

// Pub/sub channel names. Subscribers filter by the userId in the payload.
const (
	ChannelPartialUpdate  = "partial-visualization-update"
	ChannelCompleteUpdate = "visualization-updates"
	ChannelPartialError   = "partial-visualization-error"
	ChannelCancellation   = "visualization-cancelled"
)

var NotificationChannels = []string{
	ChannelPartialUpdate,
	ChannelCompleteUpdate,
	ChannelPartialError,
	ChannelCancellation,
}
