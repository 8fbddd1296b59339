package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Job represents one delivery of an image job pulled from the queue
type Job struct {
	ID       string
	ImageURL string

	// DeliveryCount includes the current delivery, so it is at least 1
	DeliveryCount int

	// ReceiptToken identifies this delivery to the transport that produced it
	ReceiptToken any

	// Body is the raw message, forwarded as-is to the dead-letter queue
	Body []byte

	// DecodeErr is set when Body could not be parsed
	DecodeErr error
}

// NewJob builds a job from a raw message body. An unparsable body still
// yields a job so that the delivery can be routed to the dead-letter queue.
func NewJob(body []byte, deliveryCount int, receipt any) *Job {
	if deliveryCount < 1 {
		deliveryCount = 1
	}

	job := &Job{
		DeliveryCount: deliveryCount,
		ReceiptToken:  receipt,
		Body:          body,
	}

	msg, err := ParseJobMessage(body)
	if err != nil {
		job.DecodeErr = err
		return job
	}
	job.ID = msg.ID
	job.ImageURL = msg.ImageURL
	return job
}

// JobMessage is the wire format of a job message
type JobMessage struct {
	ID       string `json:"id"`
	ImageURL string `json:"image_url"`
}

// ParseJobMessage decodes a message body. A malformed body is reported with
// ErrInvalidPayload so the caller can still dead-letter the raw message.
func ParseJobMessage(body []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return msg, nil
}

// Validate checks that the job can name an artifact and points somewhere
func (j *Job) Validate() error {
	if j.DecodeErr != nil {
		return j.DecodeErr
	}
	if !ValidJobID(j.ID) {
		return fmt.Errorf("%w: unusable job id %q", ErrInvalidPayload, j.ID)
	}
	if strings.TrimSpace(j.ImageURL) == "" {
		return fmt.Errorf("%w: image_url is required", ErrInvalidPayload)
	}
	return nil
}

// ValidJobID reports whether id can safely name an artifact
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// FetchedImage holds the downloaded payload of a single attempt
type FetchedImage struct {
	Data    []byte
	Subtype string
}

// Derivative is the resized image ready to be published
type Derivative struct {
	Key     string
	Subtype string
	Data    []byte
	Width   int
	Height  int
}

// DerivativeKey names the artifact of a job. It depends only on its inputs,
// so a successful re-run overwrites the previous output.
func DerivativeKey(id, subtype string) string {
	return id + "." + subtype
}
