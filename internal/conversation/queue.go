package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const (
	jobTypeInbound jobType = "inbound"
)

type queuePayload struct {
	ID    string       `json:"id"`
	Kind  jobType      `json:"kind"`
	Event InboundEvent `json:"event"`
}

func encodePayload(kind jobType, event InboundEvent) (queuePayload, string, error) {
	payload := queuePayload{
		ID:    uuid.NewString(),
		Kind:  kind,
		Event: event,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
