package handlers

import (
	"strings"

	"github.com/wa-ai-replybot-go/internal/models"
)

// Trigger reasons
const (
	ReasonPrivate = "private"
	ReasonMention = "mention"
	ReasonKeyword = "keyword"
)

// Decision is the triage result for one message
type Decision struct {
	Reply   bool
	Reason  string
	Keyword string
}

// ShouldReply decides whether a message warrants an automated reply.
// Private chats always qualify. Group messages qualify when one of selfIDs is
// mentioned or the body contains a keyword (case-insensitive, first match wins).
func ShouldReply(msg *models.InboundMessage, settings models.Settings, selfIDs []string) Decision {
	if !msg.IsGroup {
		return Decision{Reply: true, Reason: ReasonPrivate}
	}

	if isMentioned(msg.MentionedIDs, selfIDs) {
		return Decision{Reply: true, Reason: ReasonMention}
	}

	lowerBody := strings.ToLower(msg.Body)
	for _, keyword := range settings.Keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowerBody, strings.ToLower(keyword)) {
			return Decision{Reply: true, Reason: ReasonKeyword, Keyword: keyword}
		}
	}

	return Decision{}
}

func isMentioned(mentioned, selfIDs []string) bool {
	if len(mentioned) == 0 || len(selfIDs) == 0 {
		return false
	}
	self := make(map[string]struct{}, len(selfIDs))
	for _, id := range selfIDs {
		if user := userPart(id); user != "" {
			self[user] = struct{}{}
		}
	}
	for _, id := range mentioned {
		if _, ok := self[userPart(id)]; ok {
			return true
		}
	}
	return false
}

// userPart reduces "user.agent:device@server" to "user"
func userPart(id string) string {
	user, _, _ := strings.Cut(id, "@")
	user, _, _ = strings.Cut(user, ":")
	user, _, _ = strings.Cut(user, ".")
	return user
}
