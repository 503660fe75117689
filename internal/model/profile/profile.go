package profile

// Profile describes one assistant surface exposed to the frontend.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Mode        string `json:"mode"`
	OpeningLine string `json:"openingLine,omitempty"` // 为空时使用目录中的问候语
	Description string `json:"description,omitempty"`
	AutoSubmit  bool   `json:"autoSubmitVoice"`
}

// Seed provides the assistant surfaces the app ships with.
func Seed() []Profile {
	return []Profile{
		{
			ID:          "care-companion",
			Name:        "Care Companion",
			Title:       "Quick answers",
			Mode:        "plain",
			Description: "The floating chat widget. Classifies each question and answers with short reviewed guidance.",
			AutoSubmit:  false,
		},
		{
			ID:          "care-guide",
			Name:        "Care Guide",
			Title:       "Guided answers with charts and videos",
			Mode:        "rich",
			OpeningLine: "Hello! I can show growth charts, suggest videos and share articles about your baby's care. What would you like to know?",
			Description: "The embedded assistant screen. Answers can include growth charts, video and article suggestions.",
			AutoSubmit:  true,
		},
	}
}
