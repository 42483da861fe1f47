package evaluation

import "github.com/Chative-support-agent/server/internal/agent/model"

// Summarize aggregates quality signals. Averages cover evaluated turns only and
// are zero when there are none.
func Summarize(turns []*model.ConversationTurn) model.Summary {
	s := model.Summary{
		TotalConversations: len(turns),
		CategoryAverages:   make(map[string]float64, len(model.EvaluationCategories)),
	}
	sums := make(map[string]int, len(model.EvaluationCategories))
	var overall float64

	for _, t := range turns {
		if t.UserFeedback != nil {
			s.WithUserFeedback++
			if t.UserFeedback.ThumbsUp {
				s.ThumbsUp++
			} else {
				s.ThumbsDown++
			}
		}
		if t.LlmEvaluation != nil {
			s.WithLlmEvaluation++
			overall += t.LlmEvaluation.OverallScore
			for name, score := range t.LlmEvaluation.Scores() {
				sums[name] += score.Score
			}
		}
	}

	for _, name := range model.EvaluationCategories {
		s.CategoryAverages[name] = 0
	}
	if s.WithLlmEvaluation > 0 {
		n := float64(s.WithLlmEvaluation)
		s.AverageLlmScore = round2(overall / n)
		for _, name := range model.EvaluationCategories {
			s.CategoryAverages[name] = round2(float64(sums[name]) / n)
		}
	}
	return s
}
