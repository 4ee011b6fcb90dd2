// Package protocol carries index and search requests between a caller and an
// orchestrator over a Channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xhad/pagesearch/internal/models"
)

const (
	ActionCreateEmbedding = "create-document-embedding"
	ActionSearchEmbedding = "search-document-embedding"

	EventEmbeddingCompleted = "document_embedding_completed"
	EventSearchCompleted    = "search-document-embedding_completed"
	EventEmbeddingFailed    = "document_embedding_failed"
	EventPortDisconnected   = "PORT_DISCONNECTED"
)

var ErrMalformedMessage = errors.New("malformed message")

// Message is one of the request or event types below. Kind returns the value
// of its tag field.
type Message interface {
	Kind() string
}

type CreateEmbeddingRequest struct {
	Documents []models.TextFragment `json:"documents"`
}

type SearchEmbeddingRequest struct {
	Embeddings []models.EmbeddedChunk `json:"embeddings"`
	SearchText string                 `json:"searchText"`
	Threshold  *float64               `json:"threshold,omitempty"`
}

type EmbeddingCompleted struct {
	Embeddings []models.EmbeddedChunk `json:"embeddings"`
}

type SearchCompleted struct {
	Embeddings []models.ScoredChunk `json:"embeddings"`
}

type EmbeddingFailed struct {
	Error string `json:"error"`
}

type PortDisconnected struct{}

func (*CreateEmbeddingRequest) Kind() string { return ActionCreateEmbedding }
func (*SearchEmbeddingRequest) Kind() string { return ActionSearchEmbedding }
func (*EmbeddingCompleted) Kind() string     { return EventEmbeddingCompleted }
func (*SearchCompleted) Kind() string        { return EventSearchCompleted }
func (*EmbeddingFailed) Kind() string        { return EventEmbeddingFailed }
func (*PortDisconnected) Kind() string       { return EventPortDisconnected }

type schema struct {
	tagKey   string
	required []string
	alloc    func() Message
}

var schemas = map[string]schema{
	ActionCreateEmbedding:   {"action", []string{"documents"}, func() Message { return &CreateEmbeddingRequest{} }},
	ActionSearchEmbedding:   {"action", []string{"embeddings", "searchText"}, func() Message { return &SearchEmbeddingRequest{} }},
	EventEmbeddingCompleted: {"eventType", []string{"embeddings"}, func() Message { return &EmbeddingCompleted{} }},
	EventSearchCompleted:    {"eventType", []string{"embeddings"}, func() Message { return &SearchCompleted{} }},
	EventEmbeddingFailed:    {"eventType", []string{"error"}, func() Message { return &EmbeddingFailed{} }},
	EventPortDisconnected:   {"eventType", nil, func() Message { return &PortDisconnected{} }},
}

// IsRequest reports whether m is tagged with an action rather than an event
// type.
func IsRequest(m Message) bool {
	return schemas[m.Kind()].tagKey == "action"
}

// Encode serialises m as a JSON object carrying its tag.
func Encode(m Message) ([]byte, error) {
	s, ok := schemas[m.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, m.Kind())
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", m.Kind(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", m.Kind(), err)
	}

	tag, _ := json.Marshal(m.Kind())
	fields[s.tagKey] = tag
	return json.Marshal(fields)
}

// Decode parses a frame and checks it against the schema for its tag. Any
// mismatch is reported as ErrMalformedMessage.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var tagKey, tag string
	for _, key := range []string{"action", "eventType"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("%w: %s is not a string", ErrMalformedMessage, key)
		}
		tagKey = key
		break
	}
	if tagKey == "" {
		return nil, fmt.Errorf("%w: missing action or eventType", ErrMalformedMessage)
	}

	s, ok := schemas[tag]
	if !ok || s.tagKey != tagKey {
		return nil, fmt.Errorf("%w: unknown %s %q", ErrMalformedMessage, tagKey, tag)
	}

	for _, key := range s.required {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMalformedMessage, tag, key)
		}
	}

	msg := s.alloc()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, tag, err)
	}

	if req, ok := msg.(*CreateEmbeddingRequest); ok {
		for i, doc := range req.Documents {
			if !doc.Type.Valid() {
				return nil, fmt.Errorf("%w: document %d has unknown type %q", ErrMalformedMessage, i, doc.Type)
			}
		}
	}

	return msg, nil
}
