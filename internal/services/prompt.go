package services

import (
	"fmt"
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildTranscriptionPrompt asks for a verbatim transcript of the attached media.
func (pb *PromptBuilder) BuildTranscriptionPrompt() string {
	return `You are a speech-to-text engine transcribing a candidate's video interview.

Transcribe everything the speaker says, verbatim, in the spoken language.
Do not summarise, translate, add speaker labels, timestamps or commentary.
If nobody speaks, return an empty response.`
}

// BuildFaceDetectionPrompt asks for per-frame emotion data in a fixed JSON shape.
func (pb *PromptBuilder) BuildFaceDetectionPrompt(sampleIntervalMs int) string {
	return fmt.Sprintf(`You are a face and emotion detection engine analysing a candidate's video interview.

Sample the video every %d milliseconds. For every sampled frame that shows the candidate's face, report:
- the frame timestamp in milliseconds
- every visible emotion with a confidence from 0 to 100, using only these types:
  HAPPY, SAD, ANGRY, CONFUSED, DISGUSTED, SURPRISED, CALM, FEAR
- whether the candidate is smiling, with a confidence from 0 to 100

Return ONLY JSON in the following format:
{
  "Faces": [
    {
      "Timestamp": <milliseconds>,
      "Face": {
        "Emotions": [{"Type": "<TYPE>", "Confidence": <0-100>}],
        "Smile": {"Value": <true|false>, "Confidence": <0-100>}
      }
    }
  ]
}

If no face is visible, return {"Faces": []}.`, sampleIntervalMs)
}

// BuildOCRPrompt asks for the document text line by line.
func (pb *PromptBuilder) BuildOCRPrompt() string {
	return `You are an OCR engine. Extract all text from the attached document pages in reading order.

Return ONLY JSON in the following format:
{"lines": ["<first line>", "<second line>"]}

Keep each visual line as one entry. Do not correct spelling or add text.`
}

// BuildSentimentPrompt asks for a single sentiment label.
func (pb *PromptBuilder) BuildSentimentPrompt(text string) string {
	return fmt.Sprintf(`You are a sentiment classifier. Classify the overall sentiment of the following interview transcript.

TRANSCRIPT:
%s

Answer with exactly one word: POSITIVE, NEGATIVE, NEUTRAL or MIXED.`, text)
}
