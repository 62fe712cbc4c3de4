// Package router classifies a query as a definition, calculation or paper question.
package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"paperqa/internal/domain"
)

const categoryPrompt = `You are a smart routing assistant.

The assistant can answer questions about these research papers:
%s
Classify the user question into exactly one category:
- definition: the user wants the meaning of a single word or term.
- calculation: the user wants a numeric result, including word problems.
- rag: anything else, in particular questions about the papers above.

Respond ONLY with JSON of the form {"category": "definition" | "calculation" | "rag"}.

Question: %q
`

const targetPrompt = `Extract the word or term the user wants defined.
Respond ONLY with JSON of the form {"target": "<term>"}.

Question: %q
`

const expressionPrompt = `Translate the user's math question into a single arithmetic expression.
Use only numbers, + - * / ( ) and ** for exponentiation. No variables, functions or words.
Respond ONLY with JSON of the form {"expression": "<expression>"}.

Question: %q
`

// Router asks a generative model how to handle a query.
type Router struct {
	gen domain.Generator
	log *zap.Logger
}

func New(gen domain.Generator, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{gen: gen, log: log.Named("router")}
}

// Classify never fails: any model or parse problem routes the query to rag.
func (r *Router) Classify(ctx context.Context, query string, titles []string) domain.Decision {
	rawCategory, err := r.gen.Generate(ctx, CategoryPrompt(query, titles))
	if err != nil {
		r.log.Warn("category call failed, using rag", zap.Error(err))
		return domain.Decision{Category: domain.CategoryRAG}
	}

	var followUp string
	switch ParseCategory(rawCategory) {
	case domain.CategoryDefinition:
		followUp = fmt.Sprintf(targetPrompt, query)
	case domain.CategoryCalculation:
		followUp = fmt.Sprintf(expressionPrompt, query)
	default:
		r.log.Debug("routed to rag", zap.String("reply", rawCategory))
		return domain.Decision{Category: domain.CategoryRAG}
	}

	rawPayload, err := r.gen.Generate(ctx, followUp)
	if err != nil {
		r.log.Warn("follow-up call failed, using rag", zap.Error(err))
		return domain.Decision{Category: domain.CategoryRAG}
	}
	d := Decide(rawCategory, rawPayload)
	if d.Category == domain.CategoryRAG {
		r.log.Info("incomplete follow-up reply, using rag", zap.String("reply", rawPayload))
	}
	return d
}

// CategoryPrompt renders the first routing prompt.
func CategoryPrompt(query string, titles []string) string {
	var b strings.Builder
	for _, t := range titles {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	return fmt.Sprintf(categoryPrompt, b.String(), query)
}
