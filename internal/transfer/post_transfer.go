package transfer

type PostCreation struct {
	ContentText string `json:"content_text"`
	ScheduledAt string `json:"scheduled_at"`
}
