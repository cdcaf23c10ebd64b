package ai

import (
	"fmt"
	"strings"

	"github.com/kasuganosora/lifequest/server/model"
)

func questPrompt(skills []string) string {
	return fmt.Sprintf(`
You are a quest generator for a gamified productivity app called LifeQuest.
Your task is to create between 5 and 7 engaging and actionable real-life quests for a user.
The user wants to focus on the following skill areas: %s.

For each quest, provide a title, a short description, a type (must be one of the selected skills),
a difficulty ('easy', 'medium', or 'hard'), an appropriate xpReward (e.g., easy=50-100, medium=100-200, hard=200-350),
and a 'durationMinutes'. The 'durationMinutes' is your estimate of how long the quest should take to complete in minutes.
Be realistic. Examples: 'Go for a 20-minute walk' should have durationMinutes: 20. 'Read a chapter of a book' might be 45. 'Organize your closet' could be 120.
`, strings.Join(skills, ", "))
}

func chatPrompt(history []ChatMessage, message string) string {
	var b strings.Builder
	b.WriteString("You are LifeQuest Coach, a friendly, inspiring, and helpful AI assistant for a productivity app. ")
	b.WriteString("Your tone should be encouraging and positive. A user is chatting with you. ")
	b.WriteString("Continue the conversation naturally based on the history.\n\nConversation History:\n")
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
	}
	fmt.Fprintf(&b, "%s: %s\n\n%s: ", RoleUser, message, RoleBot)
	return b.String()
}

// Valid reports whether the draft can become a quest for one of skills.
func (d QuestDraft) Valid(skills []string) bool {
	if strings.TrimSpace(d.Title) == "" || d.XPReward <= 0 || d.DurationMinutes < 0 {
		return false
	}
	if !model.IsDifficulty(d.Difficulty) {
		return false
	}
	for _, s := range skills {
		if s == d.Type {
			return true
		}
	}
	return false
}

// FilterValid drops drafts that fail Valid.
func FilterValid(drafts []QuestDraft, skills []string) []QuestDraft {
	out := drafts[:0:0]
	for _, d := range drafts {
		if d.Valid(skills) {
			out = append(out, d)
		}
	}
	return out
}
