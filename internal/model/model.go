package model

// ExamType determines which auxiliary grouping key an exam carries.
type ExamType string

const (
	// ExamTypeMock is a free-standing practice exam attached to a goal.
	ExamTypeMock ExamType = "mock"
	// ExamTypeGroup is an exam belonging to an exam group under a goal.
	ExamTypeGroup ExamType = "group"
	// ExamTypeScheduled is an exam assigned to one or more batches.
	ExamTypeScheduled ExamType = "scheduled"
)

// Valid reports whether t is one of the known exam types.
func (t ExamType) Valid() bool {
	switch t {
	case ExamTypeMock, ExamTypeGroup, ExamTypeScheduled:
		return true
	}
	return false
}

// QuestionType is the answer format of a library question.
type QuestionType string

const (
	QuestionMCQ QuestionType = "MCQ"
	QuestionMSQ QuestionType = "MSQ"
	QuestionFIB QuestionType = "FIB"
)

// QuestionRef points at a library question from inside an exam section.
type QuestionRef struct {
	QuestionID string `json:"questionID"`
	SubjectID  string `json:"subjectID"`
}

// Section is one ordered block of questions sharing a marking scheme.
type Section struct {
	Title     string        `json:"title"`
	PMark     float64       `json:"pMark"`
	NMark     float64       `json:"nMark"`
	Questions []QuestionRef `json:"questions"`
}

// CoinReward grants coins when a student scores at least ConditionPercent.
type CoinReward struct {
	IsEnabled        bool    `json:"isEnabled"`
	ConditionPercent float64 `json:"conditionPercent"`
	RewardCoin       float64 `json:"rewardCoin"`
}

// Settings holds the exam behaviour flags shown to students.
type Settings struct {
	IsShowResult     bool        `json:"isShowResult"`
	IsAntiCheat      bool        `json:"isAntiCheat"`
	IsFullScreenMode bool        `json:"isFullScreenMode"`
	IsProTest        bool        `json:"isProTest"`
	IsRandomQuestion bool        `json:"isRandomQuestion"`
	MCoinReward      *CoinReward `json:"mCoinReward"`
}

// DefaultSettings returns the settings new exams start with.
func DefaultSettings() Settings {
	return Settings{MCoinReward: &CoinReward{}}
}

// Exam is the mutable, authoring-time structural record of an exam.
type Exam struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Type      ExamType `json:"type"`
	GoalID    string   `json:"goalID,omitempty"`
	GroupID   string   `json:"groupID,omitempty"`
	BatchList []string `json:"batchList,omitempty"`

	IsLive        bool    `json:"isLive"`
	BlobVersion   int     `json:"blobVersion"`
	BlobBucketKey *string `json:"blobBucketKey"`
	BlobUpdatedAt int64   `json:"blobUpdatedAt"`
	CreatedAt     int64   `json:"createdAt"`
	UpdatedAt     int64   `json:"updatedAt"`

	QuestionSection []Section `json:"questionSection"`
	Settings        *Settings `json:"settings"`

	Duration       *int64 `json:"duration"`
	StartTimeStamp *int64 `json:"startTimeStamp"`
	IsLifeTime     bool   `json:"isLifeTime"`
	EndTimeStamp   *int64 `json:"endTimeStamp"`

	TotalQuestions int           `json:"totalQuestions"`
	TotalSections  int           `json:"totalSections"`
	TotalMarks     float64       `json:"totalMarks"`
	AnswerList     []AnswerEntry `json:"answerList"`
}

// ExamGroup bundles group exams under a goal and supplies their default settings.
type ExamGroup struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goalID"`
	Title     string    `json:"title"`
	Settings  *Settings `json:"settings"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// BatchExam is the junction record linking a batch to a scheduled exam.
type BatchExam struct {
	BatchID   string `json:"batchID"`
	ExamID    string `json:"examID"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Option is a selectable answer of an MCQ/MSQ question.
type Option struct {
	ID     string  `json:"id" bson:"id"`
	Text   string  `json:"text" bson:"text"`
	Weight float64 `json:"weight" bson:"weight"`
}

// Blank is one gap of a fill-in-the-blank question.
type Blank struct {
	ID             string   `json:"id" bson:"id"`
	CorrectAnswers []string `json:"correctAnswers" bson:"correctAnswers"`
	Weight         float64  `json:"weight" bson:"weight"`
}

// QuestionDocument is a question as owned by the question library.
type QuestionDocument struct {
	QuestionID string       `json:"questionID" bson:"questionID"`
	SubjectID  string       `json:"subjectID" bson:"subjectID"`
	Title      string       `json:"title" bson:"title"`
	Type       QuestionType `json:"type" bson:"type"`
	Options    []Option     `json:"options,omitempty" bson:"options,omitempty"`
	AnswerKey  []string     `json:"answerKey,omitempty" bson:"answerKey,omitempty"`
	Blanks     []Blank      `json:"blanks,omitempty" bson:"blanks,omitempty"`
	Solution   string       `json:"solution,omitempty" bson:"solution,omitempty"`
}

// LivePointer identifies the blob currently served for a live exam.
type LivePointer struct {
	ExamID        string `json:"examID"`
	Version       int    `json:"version"`
	BlobBucketKey string `json:"blobBucketKey"`
}

// Result is the envelope every exam operation returns to its caller.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	// Kind classifies a failed result: "validation", "not_found" or "conflict".
	Kind string `json:"-"`
}
