package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseNext(t *testing.T) {
	tests := []struct {
		from Phase
		want Phase
	}{
		{PhaseDiscovery, PhaseDefinition},
		{PhaseDefinition, PhaseReview},
		{PhaseReview, PhaseCompleted},
		{PhaseCompleted, PhaseCompleted},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.Next())
		})
	}
	assert.False(t, Phase("archived").Valid())
	assert.True(t, PhaseCompleted.IsTerminal())
}

func TestAdvancePhaseForwardOnly(t *testing.T) {
	now := time.Now().UTC()
	s := NewConversationState("c1", ConversationKindIdea, now)

	assert.True(t, s.AdvancePhase(PhaseDefinition, now))
	assert.False(t, s.AdvancePhase(PhaseDiscovery, now), "backward move must be rejected")
	assert.False(t, s.AdvancePhase(PhaseDefinition, now), "same phase is not an advance")
	assert.Equal(t, PhaseDefinition, s.Phase)

	assert.True(t, s.AdvancePhase(PhaseCompleted, now))
	assert.Equal(t, ConversationStatusCompleted, s.Status)
}

func TestAddConsultedAgentDedup(t *testing.T) {
	s := NewConversationState("c1", ConversationKindTool, time.Now().UTC())

	assert.True(t, s.AddConsultedAgent("product_manager"))
	assert.False(t, s.AddConsultedAgent("product_manager"))
	assert.True(t, s.AddConsultedAgent("technical_writer"))
	assert.Equal(t, []string{"product_manager", "technical_writer"}, s.AgentsConsulted)
}

func TestAppendMessageNeverDedups(t *testing.T) {
	now := time.Now().UTC()
	s := NewConversationState("c1", ConversationKindTool, now)
	m := Message{ID: "m1", Role: RoleUser, Content: "same", Timestamp: now}

	s.AppendMessage(m)
	s.AppendMessage(m)
	assert.Len(t, s.Messages, 2)
}

func TestLastAssistantMessage(t *testing.T) {
	now := time.Now().UTC()
	s := NewConversationState("c1", ConversationKindIdea, now)
	_, ok := s.LastAssistantMessage()
	assert.False(t, ok)

	s.AppendMessage(Message{Role: RoleAssistant, Content: "q1", Timestamp: now})
	s.AppendMessage(Message{Role: RoleAssistant, Content: "q2", Timestamp: now})
	s.AppendMessage(Message{Role: RoleUser, Content: "a", Timestamp: now})

	m, ok := s.LastAssistantMessage()
	require.True(t, ok)
	assert.Equal(t, "q2", m.Content)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	s := NewConversationState("c1", ConversationKindIdea, now)
	s.Context["k"] = "v"
	s.AppendMessage(Message{Role: RoleUser, Content: "x", Timestamp: now, Metadata: map[string]string{"a": "b"}})
	s.RecordDelegation(DelegationContext{Source: "a", Target: "b", ExpectedOutputs: []string{"x"}})

	c := s.Clone()
	c.Context["k"] = "changed"
	c.Messages[0].Metadata["a"] = "changed"
	c.Delegations[0].ExpectedOutputs[0] = "changed"
	c.AddConsultedAgent("z")

	assert.Equal(t, "v", s.Context["k"])
	assert.Equal(t, "b", s.Messages[0].Metadata["a"])
	assert.Equal(t, "x", s.Delegations[0].ExpectedOutputs[0])
	assert.Empty(t, s.AgentsConsulted)
}

func TestConversationStateJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	s := NewConversationState("c1", ConversationKindFeature, now)
	s.AppendMessage(Message{ID: "m1", Role: RoleUser, Content: "build a thing", Timestamp: now})
	s.AddConsultedAgent("product_manager")
	s.Drafts["prd"] = "draft"
	s.QAPairs = append(s.QAPairs, QAPair{Question: "q", Answer: "a"})
	s.QuestionsAnswered = 1

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got ConversationState
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, *s, got)
}

func TestDocumentResultTerminalStatus(t *testing.T) {
	r := &DocumentGenerationResult{Kind: DocumentPRD, Status: DocumentStatusPending}

	assert.True(t, r.SetStatus(DocumentStatusInProgress))
	assert.True(t, r.SetStatus(DocumentStatusCompleted))
	assert.False(t, r.SetStatus(DocumentStatusInProgress))
	r.Fail(errors.New("late failure"))
	assert.Equal(t, DocumentStatusCompleted, r.Status)
	assert.Empty(t, r.Error)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, ConversationKindIdea, ParseConversationKind("unknown"))
	assert.Equal(t, ConversationKindTool, ParseConversationKind("tool"))
	assert.Equal(t, EnhancementNone, ParseEnhancementLevel(""))
	assert.Equal(t, EnhancementAdvanced, ParseEnhancementLevel("advanced"))
	assert.Equal(t, QualityStandard, ParseQualityLevel("gold"))
	assert.Equal(t, QualityExcellence, ParseQualityLevel("excellence"))
	assert.Equal(t, "c1:prd:final", StoredDocumentID("c1", DocumentPRD, true))
}
