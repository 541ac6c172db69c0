package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Answer is one retrieved knowledge passage.
type Answer struct {
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	Score    float32 `json:"score"`
}

// KnowledgeResponse holds the retrieved passages and, when the backend was
// available, a synthesized summary. Summary is best-effort: a backend
// failure leaves it empty and the passages still answer the query.
type KnowledgeResponse struct {
	Answers []Answer `json:"answers"`
	Summary string   `json:"summary,omitempty"`
}

// QueryKnowledge answers an ad-hoc question from the indexed corpus,
// bypassing classification entirely. k <= 0 selects the configured default.
func (o *Orchestrator) QueryKnowledge(ctx context.Context, question string, k int) (*KnowledgeResponse, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.QueryKnowledge")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if o.retriever == nil {
		return nil, fmt.Errorf("knowledge retrieval is not configured")
	}

	results, err := o.retriever.Search(ctx, question, k)
	if err != nil {
		return nil, err
	}

	resp := &KnowledgeResponse{Answers: make([]Answer, len(results))}
	for i, r := range results {
		resp.Answers[i] = Answer{SourceID: r.SourceID, Text: r.Text, Score: r.Score}
	}

	if o.backend != nil && len(resp.Answers) > 0 {
		if summary, err := o.summarize(ctx, question, resp.Answers); err == nil {
			resp.Summary = summary
		} else {
			o.logger.Debug("knowledge summary skipped", zap.Error(err))
		}
	}

	span.SetAttributes(attribute.Int("answers", len(resp.Answers)))
	return resp, nil
}

const summaryPrompt = `Answer the question using only the passages below.
Be concise. If the passages do not contain the answer, say so.

Question: %s

Passages:
%s`

func (o *Orchestrator) summarize(ctx context.Context, question string, answers []Answer) (string, error) {
	var passages strings.Builder
	for _, a := range answers {
		fmt.Fprintf(&passages, "[%s] %s\n\n", a.SourceID, a.Text)
	}
	out, err := o.backend.Complete(ctx, fmt.Sprintf(summaryPrompt, question, passages.String()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
