package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/pkg/protocol"
)

func TestEncode_WireShape(t *testing.T) {
	frame, err := protocol.Encode(&protocol.CreateEmbeddingRequest{
		Documents: []models.TextFragment{{ID: "element-ref-0", Type: models.Heading1, Text: "Title", SequenceIndex: 0}},
	})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &fields))
	assert.Equal(t, "create-document-embedding", fields["action"])
	docs := fields["documents"].([]interface{})
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]interface{}{
		"id": "element-ref-0", "type": "h1", "text": "Title", "sequenceIndex": float64(0),
	}, docs[0])

	frame, err = protocol.Encode(&protocol.SearchCompleted{Embeddings: []models.ScoredChunk{{
		EmbeddedChunk: models.EmbeddedChunk{
			Chunk:     models.Chunk{TextFragment: models.TextFragment{ID: "element-ref-2", Type: models.Paragraph, Text: "dogs", SequenceIndex: 2}},
			Embedding: models.Vector{0.5, 0.25},
		},
		Score: 0.75,
	}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"eventType": "search-document-embedding_completed",
		"embeddings": [{"id": "element-ref-2", "type": "p", "text": "dogs", "sequenceIndex": 2, "embedding": [0.5, 0.25], "score": 0.75}]
	}`, string(frame))

	frame, err = protocol.Encode(&protocol.PortDisconnected{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventType": "PORT_DISCONNECTED"}`, string(frame))
}

func TestDecode(t *testing.T) {
	msg, err := protocol.Decode([]byte(`{"action": "search-document-embedding", "embeddings": [], "searchText": "pets"}`))
	require.NoError(t, err)
	req, ok := msg.(*protocol.SearchEmbeddingRequest)
	require.True(t, ok)
	assert.Equal(t, "pets", req.SearchText)
	assert.Nil(t, req.Threshold)
	assert.True(t, protocol.IsRequest(req))

	msg, err = protocol.Decode([]byte(`{"action": "search-document-embedding", "embeddings": [], "searchText": "pets", "threshold": 0.5}`))
	require.NoError(t, err)
	require.NotNil(t, msg.(*protocol.SearchEmbeddingRequest).Threshold)
	assert.Equal(t, 0.5, *msg.(*protocol.SearchEmbeddingRequest).Threshold)

	msg, err = protocol.Decode([]byte(`{"eventType": "document_embedding_failed", "error": "model not loaded"}`))
	require.NoError(t, err)
	assert.Equal(t, &protocol.EmbeddingFailed{Error: "model not loaded"}, msg)
	assert.False(t, protocol.IsRequest(msg))
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{"action":`},
		{"not an object", `["create-document-embedding"]`},
		{"no tag", `{"documents": []}`},
		{"tag not a string", `{"action": 7}`},
		{"unknown action", `{"action": "delete-document-embedding"}`},
		{"event type in action field", `{"action": "document_embedding_completed", "embeddings": []}`},
		{"action in eventType field", `{"eventType": "create-document-embedding", "documents": []}`},
		{"missing documents", `{"action": "create-document-embedding"}`},
		{"null documents", `{"action": "create-document-embedding", "documents": null}`},
		{"missing search text", `{"action": "search-document-embedding", "embeddings": []}`},
		{"search text not a string", `{"action": "search-document-embedding", "embeddings": [], "searchText": 3}`},
		{"bad fragment type", `{"action": "create-document-embedding", "documents": [{"id": "a", "type": "div", "text": "x", "sequenceIndex": 0}]}`},
		{"missing error", `{"eventType": "document_embedding_failed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.Decode([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, protocol.ErrMalformedMessage), err.Error())
		})
	}
}
