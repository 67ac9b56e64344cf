package exam

import (
	"fmt"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
)

type keys struct {
	table string
}

func (k keys) exam(examID string) docstore.Key {
	return docstore.Key{Table: k.table, PK: "EXAM#" + examID, SK: "EXAMS"}
}

func (k keys) group(groupID string) docstore.Key {
	return docstore.Key{Table: k.table, PK: "EXAM_GROUP#" + groupID, SK: "EXAM_GROUPS"}
}

func (k keys) batchExam(batchID, examID string) docstore.Key {
	return docstore.Key{Table: k.table, PK: "BATCH_EXAM#" + batchID, SK: "EXAM#" + examID}
}

// BlobKey is the object key of an exam blob version.
func BlobKey(examID string, version int) string {
	return fmt.Sprintf("%s-v%d.json", examID, version)
}
