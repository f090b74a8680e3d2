package models

// Document is a retrieved knowledge-base chunk.
type Document struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
}

// QueryRequest is an inbound support question.
type QueryRequest struct {
	Query       string `json:"query"`
	SessionID   string `json:"session_id,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
	UseWorkflow bool   `json:"use_workflow,omitempty"`
}

// QueryMetrics captures timing and bookkeeping for one answered query.
type QueryMetrics struct {
	RetrievalMs       float64 `json:"retrieval_ms"`
	GenerationMs      float64 `json:"generation_ms"`
	TotalMs           float64 `json:"total_ms"`
	NumDocuments      int     `json:"num_documents"`
	WorkflowUsed      bool    `json:"workflow_used"`
	FallbackUsed      bool    `json:"fallback_used,omitempty"`
	ConversationTurns int     `json:"conversation_turns"`
}

// QueryResponse is the answer returned for a QueryRequest. It is also the
// payload stored in the query cache.
type QueryResponse struct {
	Answer         string        `json:"answer"`
	Confidence     float64       `json:"confidence"`
	ShouldEscalate bool          `json:"should_escalate"`
	Documents      []Document    `json:"documents"`
	SessionID      string        `json:"session_id"`
	Cached         bool          `json:"cached"`
	Metrics        QueryMetrics  `json:"metrics"`
	Trace          []string      `json:"trace,omitempty"`
	Ticket         *TicketRecord `json:"ticket,omitempty"`
}

// TicketRecord is an escalation hand-off for a human agent.
type TicketRecord struct {
	Subject string `json:"subject"`
	Query   string `json:"query"`
	Context string `json:"context"`
	Reason  string `json:"reason"`
}
