package mcp

// ProtocolVersion is the MCP protocol revision advertised during the
// initialization handshake.
const ProtocolVersion = "2024-11-05"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// Methods and notifications used by the client.
const (
	// Initialization
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	// Tools
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	// General
	PingMethod                  Method = "ping"
	CancelledNotificationMethod Method = "notifications/cancelled"

	// ShutdownNotificationMethod is sent best-effort before local teardown
	// so the server can release session state promptly instead of waiting
	// for the stream to drop.
	ShutdownNotificationMethod Method = "notifications/shutdown"
)

// InitializeRequest starts the initialization handshake.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult returns negotiated capabilities and server info.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// InitializedNotification signals that initialization completed.
type InitializedNotification struct{}

// CancelledNotification informs the peer that a request was abandoned.
type CancelledNotification struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// ListToolsResult returns the available tools.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams names the tool to invoke and its arguments.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult represents a tool invocation result.
type CallToolResult struct {
	Content []ContentBlock `json:"content,omitempty"`
	IsError bool           `json:"isError,omitempty"`
}
