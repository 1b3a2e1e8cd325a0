package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType enumerates the wire message types exchanged between the reindex
// orchestrator and an index builder endpoint.
type MessageType string

const (
	MessageConnectionOptions MessageType = "CONNECTION_OPTIONS"
	MessageConnected         MessageType = "CONNECTED"
	MessageGetRawBatch       MessageType = "GET_RAW_BATCH"
	MessageGetRawBatchByIDs  MessageType = "GET_RAW_BATCH_BY_IDS"
	MessageReturnRawBatch    MessageType = "RETURN_RAW_BATCH"
	MessageSaveVariants      MessageType = "SAVE_VARIANTS"
	MessageVariantsSaved     MessageType = "VARIANTS_SAVED"
	MessageCompleted         MessageType = "COMPLETED"
)

// Message is the protocol envelope. ChannelID is a transport correlation
// token stamped by the sender of the initiating message and echoed on every
// reply; it is unrelated to the sales-channel id carried inside payloads.
type Message struct {
	Type      MessageType     `json:"type"`
	Value     json.RawMessage `json:"value"`
	ChannelID string          `json:"channelId"`
}

// NewMessage builds a message with the given payload. The correlation id is
// stamped later, by the channel that sends it.
func NewMessage(t MessageType, value any) (*Message, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Message{Type: t, Value: data}, nil
}

// DecodeValue unmarshals the payload into dst.
func (m *Message) DecodeValue(dst any) error {
	if err := json.Unmarshal(m.Value, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// ConnectionOptions is the CONNECTION_OPTIONS payload: everything a worker
// process needs to open its own connection to the store.
type ConnectionOptions struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// GetRawBatchPayload requests one zero-based page of variants.
type GetRawBatchPayload struct {
	BatchNumber int `json:"batchNumber"`
}

// GetRawBatchByIDsPayload requests an explicit variant id set, used for
// targeted incremental reindexing.
type GetRawBatchByIDsPayload struct {
	IDs []string `json:"ids"`
}

// ReturnRawBatchPayload carries the fetched variants back.
type ReturnRawBatchPayload struct {
	Variants []RawVariant `json:"variants"`
}

// SaveVariantsPayload asks the builder to index one batch. Batch is the
// zero-based batch index; Total is the total number of batches in the run.
type SaveVariantsPayload struct {
	Variants       []RawVariant   `json:"variants"`
	RequestContext RequestContext `json:"requestContext"`
	Batch          int            `json:"batch"`
	Total          int            `json:"total"`
}

// VariantsSavedPayload acknowledges a non-final batch.
type VariantsSavedPayload struct {
	BatchNumber int `json:"batchNumber"`
}
