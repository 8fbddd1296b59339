package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/image-worker/internal/api/domain"
	"github.com/cuongbtq/image-worker/internal/api/storage"
)

// DecodeJobCursor parses an opaque page cursor. An empty string means the first page.
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}

	createdAt, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidCursor)
	}

	var nanos int64
	if _, err := fmt.Sscanf(createdAt, "%d", &nanos); err != nil {
		return nil, fmt.Errorf("%w: bad timestamp: %v", domain.ErrInvalidCursor, err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		JobID:     jobID,
	}, nil
}

func EncodeJobCursor(cursor *storage.JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
