package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
)

func TestAssemblePrompt_ExactLayout(t *testing.T) {
	got := AssemblePrompt(
		[]string{"Chunk one.", "Chunk two."},
		"What is it?",
		"Be helpful.",
		[]domain.Turn{{Query: "Hi", Response: "Hello."}, {Query: "Ok", Response: "Sure."}},
	)

	want := "Conversation so far:\n" +
		"User: Hi\nAssistant: Hello.\nUser: Ok\nAssistant: Sure.\n" +
		"----------------------------------------------\n" +
		"Be helpful.\n" +
		"----------------------------------------------\n" +
		"context is below:\nChunk one.\nChunk two.\n" +
		"----------------------------------------------\n" +
		"user query is below:\nWhat is it?\n"
	require.Equal(t, want, got)
}

func TestAssemblePrompt_EmptyHistoryAndChunks(t *testing.T) {
	got := AssemblePrompt(nil, "Hi", "D", nil)
	require.True(t, strings.HasPrefix(got, "Conversation so far:\nNo previous conversation.\n"))
	require.Contains(t, got, "context is below:\n\n")
	require.True(t, strings.HasSuffix(got, "user query is below:\nHi\n"))
}

func TestAssemblePrompt_Deterministic(t *testing.T) {
	h := []domain.Turn{{Query: "a", Response: "b"}}
	require.Equal(t,
		AssemblePrompt([]string{"x"}, "q", DefaultDirective, h),
		AssemblePrompt([]string{"x"}, "q", DefaultDirective, h),
	)
}

func TestAssemblePrompt_HistoryOldestFirst(t *testing.T) {
	got := AssemblePrompt(nil, "q", "d", []domain.Turn{{Query: "first", Response: "1"}, {Query: "second", Response: "2"}})
	require.Less(t, strings.Index(got, "User: first"), strings.Index(got, "User: second"))
}

func TestDefaultDirective(t *testing.T) {
	require.True(t, strings.HasPrefix(DefaultDirective, "You are an intelligent Q&A bot"))
	require.True(t, strings.HasSuffix(DefaultDirective, "Never reply an empty response!!\n"))
}
