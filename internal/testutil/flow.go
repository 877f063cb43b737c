package testutil

// FixedFlowGenerator generates the same flow token every time.
//
// Unlike engine.FixedGenerator, which steps through a list of tokens, this
// generator always returns the same one.
//
// Thread-safety: FixedFlowGenerator is stateless and safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a new fixed flow token generator.
//
// Useful when a test asserts on log output or wants every handled
// message to share one correlation token:
//
//	gen := testutil.NewFixedFlowGenerator("test-flow-1")
//
// If token is empty, Generate() returns "test-flow-default".
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the fixed flow token.
//
// Implements engine.FlowTokenGenerator interface.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
