// Package tools renders the admin tools page: queue size, cleanup and
// publishing to and consuming from a message stream.
package tools

// Output fragment ids, one per action.
const (
	QueueOutput   = "queue-output"
	CleanupOutput = "cleanup-output"
	PublishOutput = "publish-output"
	ConsumeOutput = "consume-output"
)

// Panel is the result of one action.
type Panel struct {
	Output string
	Error  string
}

// Data is the tools view model.
type Data struct {
	RunID string
	Queue Panel

	Days    string
	Cleanup Panel

	Topic   string
	Key     string
	Payload string
	Publish Panel
	Consume Panel
}

// Defaults returns the initial form values.
func Defaults(topic string) Data {
	return Data{
		Days:    "7",
		Topic:   topic,
		Key:     "ui",
		Payload: `{"hello":"world"}`,
	}
}
