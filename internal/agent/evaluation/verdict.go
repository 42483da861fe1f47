package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Chative-support-agent/server/internal/agent/model"
)

var ErrInvalidVerdict = errors.New("invalid judge verdict")

const categorySchema = `{
	"type": "object",
	"required": ["score"],
	"properties": {
		"score": {"type": "integer", "minimum": 1, "maximum": 5},
		"reason": {"type": "string"}
	}
}`

var verdictSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["helpfulness", "accuracy", "tone", "completeness", "safety"],
	"properties": {
		"helpfulness": ` + categorySchema + `,
		"accuracy": ` + categorySchema + `,
		"tone": ` + categorySchema + `,
		"completeness": ` + categorySchema + `,
		"safety": ` + categorySchema + `,
		"summary": {"type": "string"}
	}
}`)

// ParseVerdict validates the judge output and builds the evaluation. The judge's
// own overall score is ignored; OverallScore is the mean of the five categories.
func ParseVerdict(content string, evaluatedAt time.Time) (*model.LlmEvaluation, error) {
	doc := extractJSON(content)
	if doc == "" {
		return nil, fmt.Errorf("%w: no JSON object in judge output", ErrInvalidVerdict)
	}

	result, err := gojsonschema.Validate(verdictSchema, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidVerdict, strings.Join(errs, "; "))
	}

	var raw struct {
		Helpfulness  categoryScore `json:"helpfulness"`
		Accuracy     categoryScore `json:"accuracy"`
		Tone         categoryScore `json:"tone"`
		Completeness categoryScore `json:"completeness"`
		Safety       categoryScore `json:"safety"`
		Summary      string        `json:"summary"`
	}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}

	ev := &model.LlmEvaluation{
		Helpfulness:  raw.Helpfulness.toModel(),
		Accuracy:     raw.Accuracy.toModel(),
		Tone:         raw.Tone.toModel(),
		Completeness: raw.Completeness.toModel(),
		Safety:       raw.Safety.toModel(),
		Summary:      strings.TrimSpace(raw.Summary),
		EvaluatedAt:  evaluatedAt.UTC(),
	}
	ev.OverallScore = OverallScore(ev)
	return ev, nil
}

// categoryScore accepts 4 and 4.0 alike; the schema already rejected fractions.
type categoryScore struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (c categoryScore) toModel() model.CategoryScore {
	return model.CategoryScore{Score: int(c.Score), Reason: strings.TrimSpace(c.Reason)}
}

// OverallScore is the mean of the five category scores rounded to 2 decimals.
func OverallScore(ev *model.LlmEvaluation) float64 {
	scores := ev.Scores()
	var sum int
	for _, name := range model.EvaluationCategories {
		sum += scores[name].Score
	}
	return round2(float64(sum) / float64(len(model.EvaluationCategories)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// extractJSON strips code fences and surrounding prose from a model reply.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
