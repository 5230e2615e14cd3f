package domain

import (
	"strconv"

	"github.com/google/uuid"
)

var (
	jobNamespace          = uuid.NameSpaceURL
	conversationNamespace = uuid.MustParse("7b1f6f0e-2d54-4c1a-9a55-52f3c9e0d6a1")
	messageNamespace      = uuid.MustParse("c3d1a2b4-8e7f-4f60-b1d2-0a9e8f7c6b5d")
)

// JobIDForSource returns the stable job ID for an audio object.
func JobIDForSource(sourceURI string) string {
	return uuid.NewSHA1(jobNamespace, []byte(sourceURI)).String()
}

// ConversationIDForJob returns the stable conversation ID for a completed job.
func ConversationIDForJob(jobID string) string {
	return uuid.NewSHA1(conversationNamespace, []byte(jobID)).String()
}

// ContextIDForConversation returns the message grouping key of a conversation.
func ContextIDForConversation(conversationID string) string {
	return "context-" + conversationID
}

// MessageIDForSegment returns the stable message ID of the index-th segment in a context.
func MessageIDForSegment(contextID string, index int) string {
	return uuid.NewSHA1(messageNamespace, []byte(contextID+"/"+strconv.Itoa(index))).String()
}
