package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/usecase/retrieval"
)

// cachedAnswer is the payload stored in the answer cache
type cachedAnswer struct {
	Content   string                    `json:"content"`
	Citations []entities.VideoReference `json:"citations"`
}

// answerCacheKey derives the cache key from the normalized query plus the
// active filter scope. Creator is always part of the key: two creators
// asking the same question must never share an answer.
func answerCacheKey(query string, creatorID uuid.UUID, courseID, videoID *uuid.UUID) string {
	scope := retrieval.NormalizeQuery(query) + "|" + creatorID.String()
	if courseID != nil {
		scope += "|course:" + courseID.String()
	}
	if videoID != nil {
		scope += "|video:" + videoID.String()
	}
	sum := sha256.Sum256([]byte(scope))
	return "answer:" + hex.EncodeToString(sum[:])
}

func encodeCachedAnswer(content string, citations []entities.VideoReference) (string, error) {
	payload, err := json.Marshal(cachedAnswer{Content: content, Citations: citations})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeCachedAnswer(payload string) (*cachedAnswer, error) {
	var answer cachedAnswer
	if err := json.Unmarshal([]byte(payload), &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}
