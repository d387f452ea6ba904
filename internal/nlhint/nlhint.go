// Package nlhint defines the optional natural-language producer contract
// (spec.md section 6, outbound capability 4): a plain text generator the
// Engine may call to turn an Explain or Optimize result into prose. It is
// never required for correctness; every caller must keep working when no
// producer is configured or the configured one fails.
package nlhint

import "context"

// Audience selects the register a Producer should write in.
type Audience string

const (
	Beginner    Audience = "beginner"
	Practitioner Audience = "practitioner"
	DBA         Audience = "dba"
)

// Request is everything a Producer needs to render one piece of prose.
type Request struct {
	Prompt   string
	Audience Audience
	Style    string
	Length   int // approximate target word count; 0 means producer default
}

// Producer is the outbound natural-language capability. Generate returns
// ok=false (never an error) when the producer is unavailable, so call sites
// never treat its absence as fatal (spec.md section 7 "Failures are never
// fatal").
type Producer interface {
	Generate(ctx context.Context, req Request) (text string, ok bool)
}

// NullProducer is the default Producer: it never produces text. Engine
// construction without an explicit producer uses this, so the optional
// explanation text is left empty and marked not ready in every response.
type NullProducer struct{}

func (NullProducer) Generate(context.Context, Request) (string, bool) {
	return "", false
}
