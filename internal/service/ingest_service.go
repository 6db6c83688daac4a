package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/repository"
)

// ErrGenerationFailed is returned when the model produced no usable questions.
var ErrGenerationFailed = errors.New("question generation produced no usable questions")

// IngestService turns raw prep material into structured questions via the
// OpenAI chat completion API with a forced tool call, then persists them.
type IngestService struct {
	client    *openai.Client
	model     string
	questions *repository.QuestionRepository
	log       zerolog.Logger
}

// NewIngestService creates a new IngestService. Returns nil when no API key
// is configured; the admin ingest endpoint is then disabled.
func NewIngestService(cfg *config.Config, questions *repository.QuestionRepository, log zerolog.Logger) *IngestService {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return &IngestService{
		client:    openai.NewClient(cfg.OpenAIAPIKey),
		model:     cfg.OpenAIModel,
		questions: questions,
		log:       log.With().Str("component", "ingest_service").Logger(),
	}
}

type extractedQuestion struct {
	Topic         string   `json:"topic"`
	Difficulty    string   `json:"difficulty"`
	QuestionText  string   `json:"question_text"`
	Passage       string   `json:"passage"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// Ingest extracts multiple-choice questions from raw text and stores them
// under the given test type and subject. Returns the persisted questions.
func (s *IngestService) Ingest(ctx context.Context, req *model.IngestQuestionsRequest) ([]model.Question, error) {
	extracted, err := s.extract(ctx, req)
	if err != nil {
		return nil, err
	}

	var saved []model.Question
	for _, eq := range extracted {
		createReq, err := s.toCreateRequest(req, eq)
		if err != nil {
			s.log.Warn().Err(err).Str("topic", eq.Topic).Msg("Skipping malformed generated question")
			continue
		}
		q, err := s.questions.Create(ctx, createReq)
		if err != nil {
			return saved, fmt.Errorf("persist question: %w", err)
		}
		saved = append(saved, *q)
	}

	if len(saved) == 0 {
		return nil, ErrGenerationFailed
	}
	return saved, nil
}

func (s *IngestService) extract(ctx context.Context, req *model.IngestQuestionsRequest) ([]extractedQuestion, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are an expert test-prep content editor. Extract multiple choice " +
					"questions with exactly 4 options each from the provided material. " +
					"Classify each question with a short topic name and a difficulty of " +
					"Easy, Medium or Hard.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: s.buildPrompt(req),
			},
		},
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        "submit_questions",
					Description: "Submit the extracted questions",
					Parameters: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"questions": map[string]interface{}{
								"type": "array",
								"items": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"topic": map[string]interface{}{
											"type":        "string",
											"description": "Short topic name, e.g. 'Linear Equations'",
										},
										"difficulty": map[string]interface{}{
											"type": "string",
											"enum": []string{"Easy", "Medium", "Hard"},
										},
										"question_text": map[string]interface{}{
											"type":        "string",
											"description": "The question text",
										},
										"passage": map[string]interface{}{
											"type":        "string",
											"description": "Reading passage the question refers to, empty if none",
										},
										"options": map[string]interface{}{
											"type": "array",
											"items": map[string]interface{}{
												"type": "string",
											},
											"description": "Exactly 4 answer options in order A-D",
										},
										"correct_answer": map[string]interface{}{
											"type":        "integer",
											"description": "0-based index of the correct option",
										},
										"explanation": map[string]interface{}{
											"type":        "string",
											"description": "Brief explanation of the correct answer",
										},
									},
									"required": []string{"topic", "difficulty", "question_text", "options", "correct_answer", "explanation"},
								},
							},
						},
						"required": []string{"questions"},
					},
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type: openai.ToolTypeFunction,
			Function: openai.ToolFunction{
				Name: "submit_questions",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, ErrGenerationFailed
	}

	toolCall := resp.Choices[0].Message.ToolCalls[0]
	if toolCall.Function.Name != "submit_questions" {
		return nil, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}

	var args struct {
		Questions []extractedQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse tool arguments: %w", err)
	}
	return args.Questions, nil
}

func (s *IngestService) buildPrompt(req *model.IngestQuestionsRequest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Extract questions for the %s exam, subject %q, from this material:\n\n",
		req.TestType, req.Subject))
	sb.WriteString(req.RawText)
	sb.WriteString("\n\nRequirements:\n")
	sb.WriteString("- Each question must have exactly 4 options\n")
	sb.WriteString("- Keep the original wording where the material already contains questions\n")
	sb.WriteString("- Incorrect options should be plausible but clearly wrong\n")
	sb.WriteString("- Provide a brief explanation for every correct answer\n")
	sb.WriteString("- Use the submit_questions tool to return the questions\n")

	return sb.String()
}

var choiceByIndex = []model.Choice{model.ChoiceA, model.ChoiceB, model.ChoiceC, model.ChoiceD}

func (s *IngestService) toCreateRequest(req *model.IngestQuestionsRequest, eq extractedQuestion) (*model.CreateQuestionRequest, error) {
	if len(eq.Options) != 4 {
		return nil, fmt.Errorf("expected 4 options, got %d", len(eq.Options))
	}
	if eq.CorrectAnswer < 0 || eq.CorrectAnswer > 3 {
		return nil, fmt.Errorf("correct answer index out of range: %d", eq.CorrectAnswer)
	}

	difficulty := model.Difficulty(eq.Difficulty)
	switch difficulty {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		difficulty = model.DifficultyMedium
	}

	createReq := &model.CreateQuestionRequest{
		TestType:      req.TestType,
		Subject:       req.Subject,
		Topic:         eq.Topic,
		Difficulty:    difficulty,
		QuestionText:  eq.QuestionText,
		OptionA:       eq.Options[0],
		OptionB:       eq.Options[1],
		OptionC:       eq.Options[2],
		OptionD:       eq.Options[3],
		CorrectAnswer: choiceByIndex[eq.CorrectAnswer],
		Explanation:   eq.Explanation,
	}
	if eq.Passage != "" {
		createReq.Passage = &eq.Passage
	}
	return createReq, nil
}
