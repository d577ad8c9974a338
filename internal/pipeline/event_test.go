package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadEventObject(t *testing.T) {
	tests := []struct {
		name    string
		event   UploadEvent
		bucket  string
		key     string
		wantErr bool
	}{
		{name: "no records", event: UploadEvent{}, wantErr: true},
		{
			name:    "missing bucket",
			event:   UploadEvent{Records: []UploadRecord{{S3: S3Entity{Object: S3Object{Key: "a.pdf"}}}}},
			wantErr: true,
		},
		{
			name:    "missing key",
			event:   UploadEvent{Records: []UploadRecord{{S3: S3Entity{Bucket: S3Bucket{Name: "b"}}}}},
			wantErr: true,
		},
		{
			name:   "encoded key",
			event:  UploadEvent{Records: []UploadRecord{{S3: S3Entity{Bucket: S3Bucket{Name: "b"}, Object: S3Object{Key: "resumes/John+Doe%281%29.pdf"}}}}},
			bucket: "b",
			key:    "resumes/John Doe(1).pdf",
		},
		{
			name:   "round trip",
			event:  NewUploadEvent("videos", "interviews/a b.mp4"),
			bucket: "videos",
			key:    "interviews/a b.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := tt.event.Object()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestNotificationEvent(t *testing.T) {
	note := JobNotification{
		JobID:  "face-1",
		Status: NotificationSucceeded,
		JobTag: "abc",
		Video:  VideoRef{S3Bucket: "videos", S3ObjectName: "a.mp4"},
	}
	event, err := NewNotificationEvent(note)
	require.NoError(t, err)

	got, err := event.Notification()
	require.NoError(t, err)
	assert.Equal(t, note, got)
}

func TestNotificationEventInvalid(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "empty", message: ""},
		{name: "not json", message: "{"},
		{name: "missing job id", message: `{"JobTag":"a","Video":{"S3Bucket":"b","S3ObjectName":"k"}}`},
		{name: "missing tag", message: `{"JobId":"1","Video":{"S3Bucket":"b","S3ObjectName":"k"}}`},
		{name: "missing video", message: `{"JobId":"1","JobTag":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NotificationEvent{Records: []NotificationRecord{{Sns: SNSMessage{Message: tt.message}}}}
			_, err := event.Notification()
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}

	_, err := NotificationEvent{}.Notification()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
