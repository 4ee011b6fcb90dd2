package models

// FragmentType is the kind of page element a fragment was read from.
type FragmentType string

const (
	Paragraph FragmentType = "p"
	Heading1  FragmentType = "h1"
	Heading2  FragmentType = "h2"
	Heading3  FragmentType = "h3"
	Heading4  FragmentType = "h4"
	Heading5  FragmentType = "h5"
	Heading6  FragmentType = "h6"
)

// Valid reports whether t is one of the known fragment types.
func (t FragmentType) Valid() bool {
	switch t {
	case Paragraph, Heading1, Heading2, Heading3, Heading4, Heading5, Heading6:
		return true
	}
	return false
}

// TextFragment is a labeled piece of page text with a handle back to its element.
type TextFragment struct {
	ID            string       `json:"id"`
	Type          FragmentType `json:"type"`
	Text          string       `json:"text"`
	SequenceIndex int          `json:"sequenceIndex"`
}

// Chunk is a fragment, or a word window of one. Chunks cut from the same
// fragment share its ID and SequenceIndex.
type Chunk struct {
	TextFragment
}

// Vector is an embedding produced by the provider.
type Vector []float32

type EmbeddedChunk struct {
	Chunk
	Embedding Vector `json:"embedding"`
}

type ScoredChunk struct {
	EmbeddedChunk
	Score float64 `json:"score"`
}
