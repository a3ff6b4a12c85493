// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Agent identities used on the platform's message envelopes.
const (
	AgentName        = "CitationManagerAgent"
	WrapperAgentName = "GeminiWrapperAgent"
)

// ReportStatus is the outcome carried by a CompletionReport.
type ReportStatus string

const (
	StatusSuccess ReportStatus = "SUCCESS"
	StatusFailure ReportStatus = "FAILURE"
)

// TaskEnvelope is the request shape shared by every agent on the platform.
type TaskEnvelope struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Task      Task   `json:"task"`
}

// Task names the requested operation and carries its loosely typed
// parameters.
type Task struct {
	Name       string         `json:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Validate checks the fields every envelope must carry.
func (e TaskEnvelope) Validate() error {
	if e.MessageID == "" {
		return errors.New("message_id is required")
	}
	if e.Sender == "" {
		return errors.New("sender is required")
	}
	return nil
}

// CompletionReport is the response shape shared by every agent. Output is a
// JSON document encoded as a string.
type CompletionReport struct {
	MessageID        string        `json:"message_id"`
	Sender           string        `json:"sender"`
	Recipient        string        `json:"recipient"`
	RelatedMessageID string        `json:"related_message_id"`
	Status           ReportStatus  `json:"status"`
	Results          ReportResults `json:"results"`
}

// ReportResults wraps the JSON-encoded output of a task.
type ReportResults struct {
	Output string `json:"output"`
	Cached bool   `json:"cached"`
}
