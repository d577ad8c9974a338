package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"alfredoptarigan/candidate-screener/internal/models"
)

func putTestObject(t *testing.T, storage StorageService, bucket, key string, data []byte) {
	t.Helper()
	_, err := storage.PutObject(context.Background(), bucket, key, bytes.NewReader(data), nil)
	require.NoError(t, err)
}

func TestTranscriptionExecutorStoresDocument(t *testing.T) {
	storage := NewStorageService(t.TempDir(), "http://localhost:8080")
	putTestObject(t, storage, "videos", "a.mp4", []byte("video"))
	gemini := &fakeGemini{media: "  I built a project on AWS.  "}

	exec := NewTranscriptionExecutor(storage, gemini, "transcripts")
	out, err := exec.Execute(context.Background(), &models.ProcessingJob{Name: "video-analysis-1", Bucket: "videos", Key: "a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/v1/objects/transcripts/video-analysis-1.json", out.Location)
	require.Len(t, gemini.mediaSeen, 1)
	assert.Equal(t, "video/mp4", gemini.mediaSeen[0].MIMEType)

	doc, err := storage.ReadObject(context.Background(), "transcripts", "video-analysis-1.json")
	require.NoError(t, err)
	assert.Equal(t, "I built a project on AWS.", gjson.GetBytes(doc, "results.transcripts.0.transcript").String())
	assert.Equal(t, "video-analysis-1", gjson.GetBytes(doc, "jobName").String())
}

func TestTranscriptionExecutorSilentVideo(t *testing.T) {
	storage := NewStorageService(t.TempDir(), "http://localhost:8080")
	putTestObject(t, storage, "videos", "a.mp4", []byte("video"))

	exec := NewTranscriptionExecutor(storage, &fakeGemini{mediaErr: ErrEmptyResponse}, "transcripts")
	_, err := exec.Execute(context.Background(), &models.ProcessingJob{Name: "video-analysis-2", Bucket: "videos", Key: "a.mp4"})
	require.NoError(t, err)

	doc, err := storage.ReadObject(context.Background(), "transcripts", "video-analysis-2.json")
	require.NoError(t, err)
	assert.Empty(t, gjson.GetBytes(doc, "results.transcripts.0.transcript").String())
}

func TestFaceDetectionExecutorNormalisesOutput(t *testing.T) {
	tests := []struct {
		name  string
		resp  string
		faces int
	}{
		{
			name:  "wrapped object",
			resp:  "```json\n{\"Faces\":[{\"Timestamp\":0,\"Face\":{\"Emotions\":[{\"Type\":\"CALM\",\"Confidence\":70}],\"Smile\":{\"Value\":false,\"Confidence\":60}}}]}\n```",
			faces: 1,
		},
		{
			name:  "bare array",
			resp:  `[{"Timestamp":0,"Face":{"Emotions":[]}},{"Timestamp":1000,"Face":{"Emotions":[]}}]`,
			faces: 2,
		},
		{
			name:  "no faces",
			resp:  `{"Faces":[]}`,
			faces: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewStorageService(t.TempDir(), "")
			putTestObject(t, storage, "videos", "a.mp4", []byte("video"))

			exec := NewFaceDetectionExecutor(storage, &fakeGemini{media: tt.resp})
			out, err := exec.Execute(context.Background(), &models.ProcessingJob{Bucket: "videos", Key: "a.mp4"})
			require.NoError(t, err)
			assert.Equal(t, int64(tt.faces), gjson.Get(out.Payload, "Faces.#").Int())
		})
	}
}

func TestFaceDetectionExecutorRejectsGarbage(t *testing.T) {
	storage := NewStorageService(t.TempDir(), "")
	putTestObject(t, storage, "videos", "a.mp4", []byte("video"))

	exec := NewFaceDetectionExecutor(storage, &fakeGemini{media: "I could not see anyone"})
	_, err := exec.Execute(context.Background(), &models.ProcessingJob{Bucket: "videos", Key: "a.mp4"})
	require.Error(t, err)
}

func TestTextDetectionExecutorImageOCR(t *testing.T) {
	storage := NewStorageService(t.TempDir(), "")
	putTestObject(t, storage, "resumes", "cv.png", []byte("png"))
	gemini := &fakeGemini{media: `{"lines":["Jane Doe"," ","Skills: Go"]}`}

	exec := NewTextDetectionExecutor(storage, NewPDFParserService(), gemini, nil)
	out, err := exec.Execute(context.Background(), &models.ProcessingJob{Bucket: "resumes", Key: "cv.png"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lines":["Jane Doe","Skills: Go"]}`, out.Payload)
	require.Len(t, gemini.mediaSeen, 1)
	assert.Equal(t, "image/png", gemini.mediaSeen[0].MIMEType)
}

func TestTextDetectionExecutorErrors(t *testing.T) {
	storage := NewStorageService(t.TempDir(), "")
	putTestObject(t, storage, "resumes", "cv.docx", []byte("doc"))
	putTestObject(t, storage, "resumes", "cv.jpg", []byte("jpg"))

	exec := NewTextDetectionExecutor(storage, NewPDFParserService(), nil, nil)
	_, err := exec.Execute(context.Background(), &models.ProcessingJob{Bucket: "resumes", Key: "cv.docx"})
	require.Error(t, err)

	_, err = exec.Execute(context.Background(), &models.ProcessingJob{Bucket: "resumes", Key: "cv.jpg"})
	require.True(t, errors.Is(err, errNoModel))
}
