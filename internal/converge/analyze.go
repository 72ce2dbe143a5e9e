package converge

import (
	"fmt"
	"strings"
	"time"

	"github.com/ckoons/katra-sub002/internal/keywords"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/types"
)

// Marker phrases that make a conversation turn worth remembering.
var (
	decisionMarkers  = []string{"decide", "chose", "will use", "going with", "selected"}
	questionMarkers  = []string{"?", "how", "what", "why", "when", "where", "who"}
	knowledgeMarkers = []string{"learned", "understand", "realize", "discovered", "found out"}
)

// baseImportance is the floor for automatic candidates.
const baseImportance = 0.25

// autoImportance derives a candidate's importance from its markers.
func autoImportance(c *Candidate) float64 {
	importance := baseImportance
	if c.DecisionMade {
		importance += 0.3
	}
	if c.QuestionAsked {
		importance += 0.2
	}
	if c.KnowledgeShared {
		importance += 0.3
	}
	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}

// AnalyzeConversation extracts automatic memory candidates from one
// conversation turn. The user's input becomes an experience candidate, the
// CI's response a reflection candidate; turns without any marker are not
// memorable and produce nothing.
func (d *Detector) AnalyzeConversation(userInput, ciResponse string) ([]*Candidate, error) {
	if userInput == "" || ciResponse == "" {
		return nil, fmt.Errorf("%w: empty conversation turn", types.ErrInvalidInput)
	}

	now := time.Now().UTC()
	var candidates []*Candidate

	user := &Candidate{
		Content:         userInput,
		Type:            types.TypeExperience,
		Timestamp:       now,
		DecisionMade:    keywords.ContainsAny(userInput, decisionMarkers),
		QuestionAsked:   keywords.ContainsAny(userInput, questionMarkers),
		KnowledgeShared: keywords.ContainsAny(userInput, knowledgeMarkers),
	}
	if reason := rationale(user, "Decision made", "Question asked", "Knowledge shared"); reason != "" {
		user.Reason = reason
		user.Importance = autoImportance(user)
		candidates = append(candidates, user)
	}

	ci := &Candidate{
		Content:         ciResponse,
		Type:            types.TypeReflection,
		Timestamp:       now,
		DecisionMade:    keywords.ContainsAny(ciResponse, decisionMarkers),
		KnowledgeShared: keywords.ContainsAny(ciResponse, knowledgeMarkers),
	}
	if reason := rationale(ci, "CI decision", "", "CI insight"); reason != "" {
		ci.Reason = reason
		ci.Importance = autoImportance(ci)
		candidates = append(candidates, ci)
	}

	logging.Debug("converge", "analyzed conversation: %d candidates", len(candidates))
	return candidates, nil
}

func rationale(c *Candidate, decision, question, knowledge string) string {
	var parts []string
	if c.DecisionMade && decision != "" {
		parts = append(parts, decision)
	}
	if c.QuestionAsked && question != "" {
		parts = append(parts, question)
	}
	if c.KnowledgeShared && knowledge != "" {
		parts = append(parts, knowledge)
	}
	return strings.Join(parts, "; ")
}
