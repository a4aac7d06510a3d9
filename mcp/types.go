package mcp

import "strings"

// ClientCapabilities advertises client features. The session layer
// round-trips this once during the handshake and is otherwise agnostic
// to its contents.
type ClientCapabilities struct {
	Roots *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"roots,omitempty"`
	Sampling *struct{} `json:"sampling,omitempty"`
}

// ServerCapabilities advertises server features.
type ServerCapabilities struct {
	Logging *struct{} `json:"logging,omitempty"`
	Tools   *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools,omitempty"`
	Prompts *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"prompts,omitempty"`
	Resources *struct {
		ListChanged bool `json:"listChanged"`
		Subscribe   bool `json:"subscribe"`
	} `json:"resources,omitempty"`
}

// ImplementationInfo describes an implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitempty"`
}

// Tool describes a callable tool and its input schema. The schema is kept
// as a loosely typed map: the session layer never interprets it.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ContentBlock is a typed content part of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	// For text content
	Text string `json:"text,omitempty"`
	// For image and audio content
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	// For resource links
	URI string `json:"uri,omitempty"`
}

// ExtractText joins the text content blocks of a tool result into a single
// string. Non-text blocks are represented as inline markers so callers see
// that something was elided rather than silently losing content.
func ExtractText(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "":
			// skip
		default:
			parts = append(parts, "["+b.Type+"]")
		}
	}
	return strings.Join(parts, "\n")
}
