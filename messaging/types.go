package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every outbound node message with identity and ordering
// metadata.
type Envelope struct {
	MessageID string      `json:"message_id"`
	Subject   string      `json:"subject"`
	NodeUUID  string      `json:"node_uuid"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

const (
	SubjectNodeRegister  = "node.register"
	SubjectNodeHeartbeat = "node.heartbeat"
	SubjectSlideChanged  = "node.slide_changed"
)

// NewEnvelope stamps a payload with a fresh message ID and the current
// time.
func NewEnvelope(subject, nodeUUID string, payload interface{}) *Envelope {
	return &Envelope{
		MessageID: uuid.New().String(),
		Subject:   subject,
		NodeUUID:  nodeUUID,
		Timestamp: time.Now().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Encode renders the envelope as JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// NodeRegister announces the node to the manager on startup.
type NodeRegister struct {
	NodeUUID string `json:"node_uuid"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// NodeHeartbeat is the periodic liveness report.
type NodeHeartbeat struct {
	NodeUUID     string `json:"node_uuid"`
	Uptime       int64  `json:"uptime_seconds"`
	CurrentSlide string `json:"current_slide"`
	DeckRevision string `json:"deck_revision"`
}

// SlideChanged reports a playback advance.
type SlideChanged struct {
	NodeUUID  string `json:"node_uuid"`
	SlideName string `json:"slide_name"`
	Index     int    `json:"index"`
	Revision  string `json:"deck_revision"`
}
