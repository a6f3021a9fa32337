// Package logs renders the live log viewer.
package logs

// Data is the live log view model.
type Data struct {
	Topic string
	Limit int
}
