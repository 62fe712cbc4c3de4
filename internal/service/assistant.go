// Package service routes each query to the dictionary, the calculator or the papers.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paperqa/internal/calc"
	"paperqa/internal/domain"
	"paperqa/internal/vectorstore"
)

// DefaultTitles are the papers shipped in the default corpus.
var DefaultTitles = []string{
	"Attention is all you need",
	"BERT: Pre-training of Deep Bidirectional Transformers for Language Understanding",
	"Improving Language Understanding by Generative Pre-Training",
}

type Classifier interface {
	Classify(ctx context.Context, query string, titles []string) domain.Decision
}

type Definer interface {
	Define(ctx context.Context, term string) string
}

type IndexProvider interface {
	Get(ctx context.Context) (vectorstore.Index, error)
}

type Answerer interface {
	Answer(ctx context.Context, idx vectorstore.Index, query string) (string, error)
}

// Recorder receives one observation per answered query.
type Recorder interface {
	ObserveQuery(category string, took time.Duration, failed bool)
}

// Result is what every front-end displays for one query.
type Result struct {
	RequestID  string
	Query      string
	Category   domain.Category
	Target     string
	Expression string
	Answer     string
	Err        error
}

// Render produces the user-facing text for r.
func (r Result) Render() string {
	switch r.Category {
	case domain.CategoryDefinition:
		return "Definition route, using the dictionary API.\n" + r.Answer
	case domain.CategoryCalculation:
		if r.Err != nil {
			return "Calculation route.\nCould not compute the result: " + r.Err.Error()
		}
		return fmt.Sprintf("Calculation route.\nThe result of %s is %s", r.Expression, r.Answer)
	}
	if r.Err != nil {
		return "RAG route, referring to the provided papers.\nCould not answer from the papers: " + r.Err.Error()
	}
	return "RAG route, referring to the provided papers.\nAnswer: " + r.Answer
}

// Deps are the collaborators of an Assistant.
type Deps struct {
	Router   Classifier
	Dict     Definer
	Index    IndexProvider
	RAG      Answerer
	Titles   []string
	Recorder Recorder
	Logger   *zap.Logger
}

type Assistant struct {
	deps Deps
	log  *zap.Logger
}

func NewAssistant(deps Deps) *Assistant {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if len(deps.Titles) == 0 {
		deps.Titles = DefaultTitles
	}
	return &Assistant{deps: deps, log: deps.Logger.Named("assistant")}
}

// Ask routes query and runs exactly one handler. It never returns an error;
// failures are carried in Result.Err for display.
func (a *Assistant) Ask(ctx context.Context, query string) Result {
	start := time.Now()
	res := Result{RequestID: uuid.NewString(), Query: query}
	log := a.log.With(zap.String("request_id", res.RequestID))

	d := a.deps.Router.Classify(ctx, query, a.deps.Titles)
	res.Category, res.Target, res.Expression = d.Category, d.Target, d.Expression
	log.Info("routed", zap.String("category", string(d.Category)), zap.String("target", d.Target), zap.String("expression", d.Expression))

	switch d.Category {
	case domain.CategoryDefinition:
		res.Answer = a.deps.Dict.Define(ctx, d.Target)
	case domain.CategoryCalculation:
		v, err := calc.Evaluate(d.Expression)
		if err != nil {
			res.Err = err
		} else {
			res.Answer = calc.Format(v)
		}
	default:
		res.Category = domain.CategoryRAG
		res.Answer, res.Err = a.answerFromPapers(ctx, query)
	}

	took := time.Since(start)
	if res.Err != nil {
		log.Warn("query failed", zap.String("category", string(res.Category)), zap.Duration("took", took), zap.Error(res.Err))
	} else {
		log.Info("query answered", zap.String("category", string(res.Category)), zap.Duration("took", took))
	}
	if a.deps.Recorder != nil {
		a.deps.Recorder.ObserveQuery(string(res.Category), took, res.Err != nil)
	}
	return res
}

func (a *Assistant) answerFromPapers(ctx context.Context, query string) (string, error) {
	idx, err := a.deps.Index.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("load index: %w", err)
	}
	return a.deps.RAG.Answer(ctx, idx, query)
}
