package ai

import (
	"context"

	"github.com/kasuganosora/lifequest/server/model"
)

type questTemplate struct {
	title, description string
	difficulty         string
	xp                 int64
	minutes            int
}

var templateBook = map[string][]questTemplate{
	model.SkillFitness: {
		{"Morning Walk", "Go for a brisk 20-minute walk outside.", model.DifficultyEasy, 60, 20},
		{"Stretch Break", "Do a full-body stretching routine.", model.DifficultyEasy, 50, 15},
		{"Bodyweight Circuit", "Complete three rounds of squats, push-ups and planks.", model.DifficultyMedium, 150, 30},
		{"Cardio Session", "Run, cycle or swim for 45 minutes.", model.DifficultyHard, 250, 45},
		{"Hydration Hero", "Drink eight glasses of water today.", model.DifficultyEasy, 70, 5},
	},
	model.SkillLearning: {
		{"Read a Chapter", "Read one chapter of a non-fiction book.", model.DifficultyMedium, 120, 45},
		{"New Word", "Learn three new words and use them in sentences.", model.DifficultyEasy, 50, 10},
		{"Online Lesson", "Finish one lesson of an online course.", model.DifficultyMedium, 160, 60},
		{"Teach It Back", "Write a one-page summary of something you learned this week.", model.DifficultyHard, 220, 60},
		{"Documentary Night", "Watch a documentary and note three takeaways.", model.DifficultyMedium, 110, 90},
	},
	model.SkillSocial: {
		{"Reach Out", "Message a friend you have not talked to in a while.", model.DifficultyEasy, 60, 10},
		{"Coffee Catch-up", "Meet someone for coffee or a call.", model.DifficultyMedium, 140, 60},
		{"Compliment Quest", "Give three sincere compliments today.", model.DifficultyEasy, 50, 5},
		{"Host a Gathering", "Plan and host a small get-together.", model.DifficultyHard, 300, 180},
		{"Active Listener", "Have a conversation where you mostly ask questions.", model.DifficultyMedium, 100, 30},
	},
	model.SkillProductivity: {
		{"Inbox Zero", "Clear or triage every email in your inbox.", model.DifficultyMedium, 130, 45},
		{"Plan Tomorrow", "Write tomorrow's top three priorities.", model.DifficultyEasy, 50, 10},
		{"Deep Work Block", "Work 90 minutes on one task with notifications off.", model.DifficultyHard, 260, 90},
		{"Declutter Desk", "Tidy and organise your workspace.", model.DifficultyEasy, 70, 20},
		{"Weekly Review", "Review last week's goals and set next week's.", model.DifficultyMedium, 150, 40},
	},
	model.SkillCreativity: {
		{"Sketch Something", "Draw an object in the room for 15 minutes.", model.DifficultyEasy, 60, 15},
		{"Write a Poem", "Write a short poem about your day.", model.DifficultyMedium, 120, 30},
		{"Photo Walk", "Take ten photos around a single theme.", model.DifficultyMedium, 140, 45},
		{"Finish a Piece", "Complete a creative project you started earlier.", model.DifficultyHard, 320, 120},
		{"Idea Storm", "List twenty ideas for a side project.", model.DifficultyEasy, 80, 20},
	},
	model.SkillMindfulness: {
		{"Breathe", "Do ten minutes of guided breathing.", model.DifficultyEasy, 50, 10},
		{"Gratitude Log", "Write down three things you are grateful for.", model.DifficultyEasy, 60, 5},
		{"Digital Sunset", "No screens for the last hour before bed.", model.DifficultyMedium, 150, 60},
		{"Mindful Meal", "Eat one meal slowly without distractions.", model.DifficultyMedium, 100, 30},
		{"Silent Retreat Hour", "Spend an hour in silence, walking or meditating.", model.DifficultyHard, 230, 60},
	},
	model.SkillFinance: {
		{"Track Spending", "Record every purchase you make today.", model.DifficultyEasy, 60, 10},
		{"Budget Check", "Compare this month's spending with your budget.", model.DifficultyMedium, 140, 30},
		{"Cancel a Subscription", "Find and cancel one subscription you do not use.", model.DifficultyMedium, 120, 20},
		{"Savings Plan", "Set up an automatic transfer to savings.", model.DifficultyHard, 280, 45},
		{"Read Your Statement", "Read through your last bank statement line by line.", model.DifficultyEasy, 80, 20},
	},
}

// Templates is an offline Generator that builds quests from a fixed book.
// Output is deterministic for a given skill list.
type Templates struct{}

// NewTemplates creates the offline generator.
func NewTemplates() *Templates { return &Templates{} }

// GenerateQuests interleaves templates of the selected skills, producing
// between 5 and 7 drafts.
func (Templates) GenerateQuests(ctx context.Context, skills []string) ([]QuestDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var known []string
	for _, s := range skills {
		if len(templateBook[s]) > 0 {
			known = append(known, s)
		}
	}
	if len(known) == 0 {
		return nil, ErrGeneration
	}
	n := min(max(len(known)*3, 5), 7)
	drafts := make([]QuestDraft, 0, n)
	for i := 0; i < n; i++ {
		skill := known[i%len(known)]
		book := templateBook[skill]
		t := book[(i/len(known))%len(book)]
		drafts = append(drafts, QuestDraft{
			Title:           t.title,
			Description:     t.description,
			Type:            skill,
			Difficulty:      t.difficulty,
			XPReward:        t.xp,
			DurationMinutes: t.minutes,
		})
	}
	return drafts, nil
}

// Chat answers with a canned encouragement.
func (Templates) Chat(ctx context.Context, history []ChatMessage, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	replies := []string{
		"Every small step counts. Which quest will you tackle next?",
		"You're doing great! Keep that streak alive.",
		"Break it into the smallest next action and start there.",
		"Progress over perfection. What's one thing you can finish today?",
	}
	return replies[(len(history)/2+len(message))%len(replies)], nil
}
