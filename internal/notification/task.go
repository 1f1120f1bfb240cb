package notification

import "time"

// Task is the queue envelope for one inbound notification request. The API
// service publishes tasks, the worker consumes them and runs the dispatch
// engine. Attempt counts requeues after resolution failures; individual send
// failures are recorded on delivery records and never requeued.
type Task struct {
	Request      Request           `json:"request"`
	Attempt      int               `json:"attempt"`
	PublishedAt  string            `json:"published_at"` // RFC3339
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// NewTask wraps a request for publishing.
func NewTask(req Request, traceHeaders map[string]string) Task {
	return Task{
		Request:      req,
		Attempt:      0,
		PublishedAt:  time.Now().UTC().Format(time.RFC3339),
		TraceHeaders: traceHeaders,
	}
}
