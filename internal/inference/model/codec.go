package model

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Codec turns artifact bytes into an Artifact and back
type Codec interface {
	Decode(data []byte) (*Artifact, error)
	Encode(a *Artifact) ([]byte, error)
	// Ext is the file extension of the format in the artifact store
	Ext() string
}

// GobCodec is the native format
type GobCodec struct{}

func (GobCodec) Ext() string { return ".gob" }

func (GobCodec) Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: gob: %v", ErrInvalidModel, err)
	}
	return &a, nil
}

func (GobCodec) Encode(a *Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("failed to encode gob model: %w", err)
	}
	return buf.Bytes(), nil
}

// JSONCodec is the portable format
type JSONCodec struct{}

func (JSONCodec) Ext() string { return ".json" }

func (JSONCodec) Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrInvalidModel, err)
	}
	return &a, nil
}

func (JSONCodec) Encode(a *Artifact) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json model: %w", err)
	}
	return data, nil
}
