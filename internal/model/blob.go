package model

// BlobOption is an option as students see it: no weight, no correctness.
type BlobOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BlobQuestion is the student-facing view of a question.
type BlobQuestion struct {
	QuestionID string       `json:"questionID"`
	SubjectID  string       `json:"subjectID"`
	Title      string       `json:"title"`
	Type       QuestionType `json:"type"`
	Options    []BlobOption `json:"options,omitempty"`
	NoOfBlanks *int         `json:"noOfBlanks,omitempty"`
}

// BlobSection mirrors a Section with resolved questions.
type BlobSection struct {
	Title     string         `json:"title"`
	PMark     float64        `json:"pMark"`
	NMark     float64        `json:"nMark"`
	Questions []BlobQuestion `json:"questions"`
}

// ExamBlob is the immutable, versioned exam document uploaded to object storage.
type ExamBlob struct {
	ExamID         string        `json:"examID"`
	Title          string        `json:"title"`
	Version        int           `json:"version"`
	Settings       Settings      `json:"settings"`
	Duration       int64         `json:"duration"`
	StartTimeStamp int64         `json:"startTimeStamp"`
	IsLifeTime     bool          `json:"isLifeTime"`
	EndTimeStamp   *int64        `json:"endTimeStamp,omitempty"`
	TotalSections  int           `json:"totalSections"`
	TotalQuestions int           `json:"totalQuestions"`
	TotalMarks     float64       `json:"totalMarks"`
	Sections       []BlobSection `json:"sections"`
}

// AnswerOption is a correct option together with its grading weight.
type AnswerOption struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// AnswerEntry is the private grading key of one question slot.
type AnswerEntry struct {
	QuestionID   string         `json:"questionID"`
	SubjectID    string         `json:"subjectID"`
	Type         QuestionType   `json:"type"`
	SectionIndex int            `json:"sectionIndex"`
	PMark        float64        `json:"pMark"`
	NMark        float64        `json:"nMark"`
	Solution     string         `json:"solution,omitempty"`
	Options      []AnswerOption `json:"options,omitempty"`
	Blanks       []Blank        `json:"blanks,omitempty"`
}
