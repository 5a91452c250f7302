package domain

import "time"

// Query defaults and bounds.
const (
	DefaultTopK            = 5
	MaxTopK                = 20
	DefaultScoreThreshold  = 0.5
	DefaultSearchThreshold = 0.3
	MaxQuestionLength      = 1000
)

// ScoredChunk pairs a resolved chunk with its similarity score.
type ScoredChunk struct {
	// Chunk is the stored chunk record.
	Chunk Chunk `json:"chunk"`

	// Score is the similarity reported by the vector index.
	Score float64 `json:"score"`

	// DocumentTitle is the owning document's title when known.
	DocumentTitle string `json:"document_title,omitempty"`
}

// NeighbourChunks is a retrieval hit with the chunks around it.
type NeighbourChunks struct {
	ScoredChunk

	// Context holds the hit and its same-document neighbours ordered by
	// chunk index.
	Context []Chunk `json:"context"`
}

// QueryRequest is the input for answering a question.
type QueryRequest struct {
	Question       string   `json:"question" validate:"required,min=1,max=1000"`
	TopK           *int     `json:"top_k,omitempty" validate:"omitempty,min=1,max=20"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty" validate:"omitempty,min=0,max=1"`
	UseContext     *bool    `json:"use_context,omitempty"`
}

// QueryOptions are the resolved parameters of a QueryRequest.
type QueryOptions struct {
	TopK           int
	ScoreThreshold float64
	UseContext     bool
}

// Options resolves defaults for unset fields.
func (r QueryRequest) Options() QueryOptions {
	opts := QueryOptions{
		TopK:           DefaultTopK,
		ScoreThreshold: DefaultScoreThreshold,
		UseContext:     true,
	}
	if r.TopK != nil {
		opts.TopK = *r.TopK
	}
	if r.ScoreThreshold != nil {
		opts.ScoreThreshold = *r.ScoreThreshold
	}
	if r.UseContext != nil {
		opts.UseContext = *r.UseContext
	}
	return opts
}

// ValidateQuestion checks a question against the accepted bounds.
func ValidateQuestion(question string, opts QueryOptions) error {
	n := len([]rune(question))
	if isBlank(question) || n > MaxQuestionLength {
		return NewValidationError("question", "must be between 1 and 1000 characters")
	}
	return ValidateSearch(opts.TopK, opts.ScoreThreshold)
}

// ValidateSearch checks top-k and threshold bounds.
func ValidateSearch(topK int, threshold float64) error {
	if topK < 1 || topK > MaxTopK {
		return NewValidationError("top_k", "must be between 1 and 20")
	}
	if threshold < 0 || threshold > 1 {
		return NewValidationError("score_threshold", "must be between 0 and 1")
	}
	return nil
}

// SearchRequest is the input for a search-only query.
type SearchRequest struct {
	Query          string   `json:"query" validate:"required,min=1,max=1000"`
	TopK           *int     `json:"top_k,omitempty" validate:"omitempty,min=1,max=20"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty" validate:"omitempty,min=0,max=1"`
}

// Resolve returns top-k and threshold with search defaults applied.
func (r SearchRequest) Resolve() (topK int, threshold float64) {
	topK, threshold = DefaultTopK, DefaultSearchThreshold
	if r.TopK != nil {
		topK = *r.TopK
	}
	if r.ScoreThreshold != nil {
		threshold = *r.ScoreThreshold
	}
	return topK, threshold
}

// SearchResponse is the result of a search-only query.
type SearchResponse struct {
	Query      string        `json:"query"`
	Results    []ScoredChunk `json:"results"`
	TotalFound int           `json:"total_found"`
}

// AnswerState is a step of the answer state machine.
type AnswerState string

// Answer states, in the order they can be visited.
const (
	StateRetrieving       AnswerState = "RETRIEVING"
	StateContextBuilt     AnswerState = "CONTEXT_BUILT"
	StateNoContext        AnswerState = "NO_CONTEXT"
	StateGenerating       AnswerState = "GENERATING"
	StateAnswered         AnswerState = "ANSWERED"
	StateGenerationFailed AnswerState = "GENERATION_FAILED"
	StateLogged           AnswerState = "LOGGED"
)

// IsTerminal reports whether no transition leaves s.
func (s AnswerState) IsTerminal() bool {
	return s == StateLogged
}

// ChunkUsed is a chunk reported back with an answer.
type ChunkUsed struct {
	ID            string  `json:"id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	Text          string  `json:"chunk_text"`
	ChunkIndex    int     `json:"chunk_index"`
	Score         float64 `json:"score"`
}

// Answer is the structured result of answering a question.
type Answer struct {
	Question        string        `json:"question"`
	Answer          string        `json:"answer"`
	ChunksUsed      []ChunkUsed   `json:"chunks_used"`
	ResponseTime    time.Duration `json:"-"`
	Model           string        `json:"model_used"`
	ChunksRetrieved int           `json:"chunks_retrieved"`
	AvgSimilarity   float64       `json:"avg_similarity"`
	TokensUsed      int           `json:"tokens_used"`
	States          []AnswerState `json:"states,omitempty"`
}

// ResponseSeconds is the response time in seconds.
func (a Answer) ResponseSeconds() float64 {
	return a.ResponseTime.Seconds()
}

// QueryLog is the immutable audit record written once per answered question.
type QueryLog struct {
	ID              string
	Question        string
	Answer          *string
	ChunksRetrieved int
	AvgScore        *float64
	ResponseTime    time.Duration
	CreatedAt       time.Time
}

// Stats summarises the knowledge base.
type Stats struct {
	TotalDocuments  int     `json:"total_documents"`
	TotalChunks     int     `json:"total_chunks"`
	TotalQueries    int     `json:"total_queries"`
	AvgResponseTime float64 `json:"avg_response_time"`
	AvgChunksPerDoc float64 `json:"avg_chunks_per_doc"`
	CollectionName  string  `json:"collection_name"`
	VectorSize      int     `json:"vector_size"`
	IndexedVectors  int     `json:"indexed_vectors"`
}

// QueryStats is the aggregate over stored query logs.
type QueryStats struct {
	Count           int
	AvgResponseTime time.Duration
}
