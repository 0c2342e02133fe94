// Package convert maps an imported scene document onto the engine's memory
// and component model. Document buffers are copied into the GPU-vertex arena,
// views and accessors are mapped onto it one to one, and every node becomes
// an entity carrying a Transform and a SceneGraph (plus a Mesh and a
// MeshRenderer when the node references a mesh).
//
// The document format is a small subset of glTF 2.0 in JSON, with buffers
// embedded as base64.
package convert

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidDocument is returned for documents with dangling or malformed
// references.
var ErrInvalidDocument = errors.New("convert: invalid document")

// Document is a decoded scene document.
type Document struct {
	Buffers     []Buffer     `json:"buffers"`
	BufferViews []BufferView `json:"bufferViews"`
	Accessors   []Accessor   `json:"accessors"`
	Materials   []Material   `json:"materials"`
	Meshes      []Mesh       `json:"meshes"`
	Nodes       []Node       `json:"nodes"`
	Scenes      []Scene      `json:"scenes"`
	Scene       int          `json:"scene"` // default scene
}

// Buffer is one backing byte array. Data is either given inline (base64 in
// JSON) or through a base64 data URI.
type Buffer struct {
	ByteLength int    `json:"byteLength"`
	URI        string `json:"uri,omitempty"`
	Data       []byte `json:"data,omitempty"`
}

type BufferView struct {
	Name       string `json:"name,omitempty"`
	Buffer     int    `json:"buffer"`
	ByteOffset int    `json:"byteOffset"`
	ByteLength int    `json:"byteLength"`
	ByteStride int    `json:"byteStride,omitempty"` // non-zero means interleaved
}

type Accessor struct {
	Name          string `json:"name,omitempty"`
	BufferView    int    `json:"bufferView"`
	ByteOffset    int    `json:"byteOffset"`
	ComponentType uint32 `json:"componentType"` // GL element type code
	Count         int    `json:"count"`
	Type          string `json:"type"` // SCALAR, VEC3, MAT4, ...
}

// Material carries a base color, either as linear RGBA factors or as an sRGB
// hex string.
type Material struct {
	Name            string      `json:"name,omitempty"`
	BaseColorFactor *[4]float32 `json:"baseColorFactor,omitempty"`
	Color           string      `json:"color,omitempty"`
}

type Primitive struct {
	Attributes map[string]int `json:"attributes"` // POSITION, NORMAL, COLOR_0
	Indices    *int           `json:"indices,omitempty"`
	Material   *int           `json:"material,omitempty"`
	Mode       *uint32        `json:"mode,omitempty"` // defaults to triangles
}

type Mesh struct {
	Name       string      `json:"name,omitempty"`
	Primitives []Primitive `json:"primitives"`
}

// Node is a scene graph node. A matrix, when present, takes precedence over
// translation, rotation (x, y, z, w) and scale.
type Node struct {
	Name        string       `json:"name,omitempty"`
	Mesh        *int         `json:"mesh,omitempty"`
	Children    []int        `json:"children,omitempty"`
	Translation *[3]float32  `json:"translation,omitempty"`
	Rotation    *[4]float32  `json:"rotation,omitempty"`
	Scale       *[3]float32  `json:"scale,omitempty"`
	Matrix      *[16]float32 `json:"matrix,omitempty"` // column-major
}

type Scene struct {
	Name  string `json:"name,omitempty"`
	Nodes []int  `json:"nodes"`
}

// Decode reads a JSON document and resolves its buffer data.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("convert: decoding document: %w", err)
	}
	for i := range doc.Buffers {
		if err := doc.Buffers[i].resolve(); err != nil {
			return nil, fmt.Errorf("%w: buffer %d: %v", ErrInvalidDocument, i, err)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (b *Buffer) resolve() error {
	if len(b.Data) == 0 && b.URI != "" {
		const marker = ";base64,"
		i := strings.Index(b.URI, marker)
		if !strings.HasPrefix(b.URI, "data:") || i < 0 {
			return fmt.Errorf("only base64 data URIs are supported, got %.32q", b.URI)
		}
		data, err := base64.StdEncoding.DecodeString(b.URI[i+len(marker):])
		if err != nil {
			return err
		}
		b.Data = data
	}
	if b.ByteLength == 0 {
		b.ByteLength = len(b.Data)
	}
	if len(b.Data) < b.ByteLength {
		return fmt.Errorf("%d bytes of data, byteLength %d", len(b.Data), b.ByteLength)
	}
	return nil
}

// Validate checks every cross reference and range in the document.
func (d *Document) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
	}
	inRange := func(i, n int) bool { return i >= 0 && i < n }

	for i, v := range d.BufferViews {
		if !inRange(v.Buffer, len(d.Buffers)) {
			return invalid("buffer view %d references buffer %d", i, v.Buffer)
		}
		if v.ByteOffset < 0 || v.ByteLength < 0 || v.ByteOffset+v.ByteLength > d.Buffers[v.Buffer].ByteLength {
			return invalid("buffer view %d [%d, +%d) outside buffer %d", i, v.ByteOffset, v.ByteLength, v.Buffer)
		}
	}
	for i, a := range d.Accessors {
		if !inRange(a.BufferView, len(d.BufferViews)) {
			return invalid("accessor %d references buffer view %d", i, a.BufferView)
		}
		if a.Count < 0 || a.ByteOffset < 0 {
			return invalid("accessor %d has count %d at offset %d", i, a.Count, a.ByteOffset)
		}
	}
	for i, m := range d.Meshes {
		for j, p := range m.Primitives {
			if _, ok := p.Attributes["POSITION"]; !ok {
				return invalid("mesh %d primitive %d has no POSITION", i, j)
			}
			for name, a := range p.Attributes {
				if !inRange(a, len(d.Accessors)) {
					return invalid("mesh %d primitive %d %s references accessor %d", i, j, name, a)
				}
			}
			if p.Indices != nil && !inRange(*p.Indices, len(d.Accessors)) {
				return invalid("mesh %d primitive %d indices reference accessor %d", i, j, *p.Indices)
			}
			if p.Material != nil && !inRange(*p.Material, len(d.Materials)) {
				return invalid("mesh %d primitive %d references material %d", i, j, *p.Material)
			}
		}
	}

	parents := make([]int, len(d.Nodes))
	for i := range parents {
		parents[i] = -1
	}
	for i, n := range d.Nodes {
		if n.Mesh != nil && !inRange(*n.Mesh, len(d.Meshes)) {
			return invalid("node %d references mesh %d", i, *n.Mesh)
		}
		for _, c := range n.Children {
			if !inRange(c, len(d.Nodes)) {
				return invalid("node %d references child %d", i, c)
			}
			if parents[c] >= 0 {
				return invalid("node %d has parents %d and %d", c, parents[c], i)
			}
			parents[c] = i
		}
	}
	for i, s := range d.Scenes {
		for _, n := range s.Nodes {
			if !inRange(n, len(d.Nodes)) {
				return invalid("scene %d references node %d", i, n)
			}
			if parents[n] >= 0 {
				return invalid("scene %d root %d is a child of node %d", i, n, parents[n])
			}
		}
	}
	if len(d.Scenes) > 0 && !inRange(d.Scene, len(d.Scenes)) {
		return invalid("default scene %d of %d", d.Scene, len(d.Scenes))
	}
	return nil
}

// Roots returns the root nodes of the default scene, or every parentless
// node when the document has no scenes.
func (d *Document) Roots() []int {
	if len(d.Scenes) > 0 {
		return d.Scenes[d.Scene].Nodes
	}
	child := make([]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		for _, c := range n.Children {
			child[c] = true
		}
	}
	var roots []int
	for i := range d.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}
