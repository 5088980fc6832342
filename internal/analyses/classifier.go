package analyses

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cais-backend/internal/llm"
	"cais-backend/internal/prompts"
)

const classifierSystemPrompt = "You are a legal document classification engine. Respond with JSON only. Output must match the schema exactly."

// Classifier runs a single classification task against the LLM, using
// whichever prompt version the registry resolves.
type Classifier struct {
	LLM      llm.Client
	Registry *prompts.Registry
}

// NewClassifier constructs a Classifier.
func NewClassifier(client llm.Client, registry *prompts.Registry) *Classifier {
	return &Classifier{LLM: client, Registry: registry}
}

// Classify resolves the prompt version for the request and runs the task.
// The version is pinned at the start, a concurrent activation does not
// affect an in-flight classification.
func (c *Classifier) Classify(ctx context.Context, req ClassificationRequest) (ClassificationResult, error) {
	var (
		version prompts.Version
		err     error
	)
	if req.PromptVersion != "" {
		version, err = c.Registry.Get(req.Task, req.PromptVersion)
	} else {
		version, err = c.Registry.Active(req.Task)
	}
	if err != nil {
		return ClassificationResult{}, err
	}
	return c.ClassifyWith(ctx, version, req)
}

// ClassifyWith runs the task with an explicit prompt version. Used directly
// by prompt evaluation, which compares versions that are not active.
func (c *Classifier) ClassifyWith(ctx context.Context, version prompts.Version, req ClassificationRequest) (ClassificationResult, error) {
	messages := []llm.Message{
		llm.System(classifierSystemPrompt),
		llm.User(version.Render(req.CompanyName, req.DocumentText, req.CandidateCodes)),
	}

	content, err := c.LLM.Complete(ctx, messages)
	if err != nil {
		return ClassificationResult{}, err
	}

	reply, parseErr := parseReply(req.Task, content)
	if parseErr != nil {
		// One repair round: show the model its own output and re-ask.
		content, reply, err = c.repair(ctx, messages, content, req.Task)
		if err != nil {
			return ClassificationResult{}, err
		}
	}

	if req.Task == prompts.TaskCounterparty && !validCode(reply.Value, req.CandidateCodes) {
		reply, err = c.reselectCode(ctx, messages, content, reply.Value, req)
		if err != nil {
			return ClassificationResult{}, err
		}
	}

	// A citation the model invented is worse than none. Keep it only when it
	// is a verbatim passage of the analyzed text.
	if reply.Citation != "" && !strings.Contains(req.DocumentText, reply.Citation) {
		reply.Citation = ""
	}

	return ClassificationResult{
		ID:             uuid.NewString(),
		Task:           req.Task,
		CompanyName:    req.CompanyName,
		Value:          reply.Value,
		Reasoning:      reply.Reasoning,
		Citation:       reply.Citation,
		PromptVersion:  version.Label,
		DocumentNames:  req.DocumentNames,
		DocumentText:   req.DocumentText,
		CandidateCodes: req.CandidateCodes,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (c *Classifier) repair(ctx context.Context, messages []llm.Message, raw string, task prompts.Task) (string, modelReply, error) {
	fixMessages := append(append([]llm.Message{}, messages...),
		llm.Message{Role: "assistant", Content: raw},
		llm.User(repairInstruction(task)),
	)
	content, err := c.LLM.Complete(ctx, fixMessages)
	if err != nil {
		return "", modelReply{}, err
	}
	reply, parseErr := parseReply(task, content)
	if parseErr != nil {
		return "", modelReply{}, fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)
	}
	return content, reply, nil
}

func (c *Classifier) reselectCode(ctx context.Context, messages []llm.Message, raw, badCode string, req ClassificationRequest) (modelReply, error) {
	retryMessages := append(append([]llm.Message{}, messages...),
		llm.Message{Role: "assistant", Content: raw},
		llm.User(fmt.Sprintf(
			"The code %q is not in the list of available codes. Choose exactly one of:\n%s\nRespond with the same JSON schema.",
			badCode, prompts.FormatCodes(req.CandidateCodes),
		)),
	)
	content, err := c.LLM.Complete(ctx, retryMessages)
	if err != nil {
		return modelReply{}, err
	}
	reply, parseErr := parseReply(req.Task, content)
	if parseErr != nil {
		return modelReply{}, fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)
	}
	if !validCode(reply.Value, req.CandidateCodes) {
		return modelReply{}, fmt.Errorf("%w: %q", ErrInvalidSelection, reply.Value)
	}
	return reply, nil
}

type modelReply struct {
	Value     string
	Reasoning string
	Citation  string
}

func parseReply(task prompts.Task, content string) (modelReply, error) {
	var raw struct {
		Jurisdiction string `json:"jurisdiction"`
		Code         string `json:"code"`
		Value        string `json:"value"`
		Reasoning    string `json:"reasoning"`
		Citation     string `json:"citation"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return modelReply{}, fmt.Errorf("decode reply: %w", err)
	}

	value := ""
	switch task {
	case prompts.TaskJurisdiction:
		value = firstNonEmpty(raw.Jurisdiction, raw.Value)
	case prompts.TaskCounterparty:
		value = firstNonEmpty(raw.Code, raw.Value)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return modelReply{}, fmt.Errorf("reply missing %s value", task)
	}

	return modelReply{
		Value:     value,
		Reasoning: strings.TrimSpace(raw.Reasoning),
		Citation:  strings.TrimSpace(raw.Citation),
	}, nil
}

func repairInstruction(task prompts.Task) string {
	schema := `{"jurisdiction": "...", "reasoning": "...", "citation": "..."}`
	if task == prompts.TaskCounterparty {
		schema = `{"code": "...", "reasoning": "...", "citation": "..."}`
	}
	return fmt.Sprintf("Your previous reply did not match the schema. Respond again with JSON only, exactly: %s", schema)
}

func validCode(code string, candidates map[string]string) bool {
	_, ok := candidates[code]
	return ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
