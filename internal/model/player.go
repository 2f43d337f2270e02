package model

import "time"

// Player is a participant embedded in the session document.
type Player struct {
	ID         string      `json:"id" bson:"id"`
	Name       string      `json:"name" bson:"name"`
	Score      int         `json:"score" bson:"score"`
	IsReady    bool        `json:"isReady" bson:"isReady"`
	LastAnswer *LastAnswer `json:"lastAnswer,omitempty" bson:"lastAnswer,omitempty"`
	JoinedAt   time.Time   `json:"joinedAt" bson:"joinedAt"`
}

// LastAnswer records a player's most recent submission.
type LastAnswer struct {
	QuestionID  string `json:"questionId" bson:"questionId"`
	OptionIndex int    `json:"optionIndex" bson:"optionIndex"`
	IsCorrect   bool   `json:"isCorrect" bson:"isCorrect"`
	TimeSpentMs int64  `json:"timeSpent" bson:"timeSpent"`
}

// AnsweredQuestion reports whether the player's last answer targets questionID.
func (p *Player) AnsweredQuestion(questionID string) bool {
	return p.LastAnswer != nil && p.LastAnswer.QuestionID == questionID
}

// JoinResponse is returned when a player joins a session
type JoinResponse struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Links    Links  `json:"links"`
}

// Links are the navigation targets for one session (and optionally one player).
type Links struct {
	Admin   string `json:"admin"`
	Join    string `json:"join"`
	Display string `json:"display"`
	Game    string `json:"game,omitempty"`
	Play    string `json:"play,omitempty"`
}
