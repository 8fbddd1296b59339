package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobMessage(t *testing.T) {
	msg, err := ParseJobMessage([]byte(`{"id":"f06795dc-af86-48fe-af5d-b2b35a01fa15","image_url":"https://example.com/a.jpg"}`))
	require.NoError(t, err)
	assert.Equal(t, "f06795dc-af86-48fe-af5d-b2b35a01fa15", msg.ID)
	assert.Equal(t, "https://example.com/a.jpg", msg.ImageURL)

	_, err = ParseJobMessage([]byte(`{not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"uuid id", Job{ID: "f06795dc-af86-48fe-af5d-b2b35a01fa15", ImageURL: "https://example.com/a.jpg"}, false},
		{"plain id", Job{ID: "job_42", ImageURL: "https://example.com/a.jpg"}, false},
		{"empty id", Job{ID: "", ImageURL: "https://example.com/a.jpg"}, true},
		{"path separator", Job{ID: "a/b", ImageURL: "https://example.com/a.jpg"}, true},
		{"parent traversal", Job{ID: "a..b", ImageURL: "https://example.com/a.jpg"}, true},
		{"leading dot", Job{ID: ".hidden", ImageURL: "https://example.com/a.jpg"}, true},
		{"missing url", Job{ID: "job-1", ImageURL: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDerivativeKey(t *testing.T) {
	assert.Equal(t, "abc.jpeg", DerivativeKey("abc", "jpeg"))
	assert.Equal(t, DerivativeKey("abc", "png"), DerivativeKey("abc", "png"))
}

func TestNewJob(t *testing.T) {
	job := NewJob([]byte(`{"id":"job-1","image_url":"https://example.com/a.png"}`), 3, uint64(7))
	require.NoError(t, job.Validate())
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "https://example.com/a.png", job.ImageURL)
	assert.Equal(t, 3, job.DeliveryCount)
	assert.Equal(t, uint64(7), job.ReceiptToken)

	malformed := NewJob([]byte(`garbage`), 0, nil)
	assert.Equal(t, 1, malformed.DeliveryCount)
	assert.Equal(t, []byte(`garbage`), malformed.Body)
	assert.ErrorIs(t, malformed.Validate(), ErrInvalidPayload)
}
