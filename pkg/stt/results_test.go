package stt

import (
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/stretchr/testify/assert"
)

func TestJoinGoogleResults(t *testing.T) {
	results := []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "Hello world."}, {Transcript: "Hollow word."}}},
		{},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " This is a test. "}}},
	}
	assert.Equal(t, "Hello world. This is a test.", joinGoogleResults(results))
	assert.Empty(t, joinGoogleResults(nil))
}

func TestFinalAmazonResults(t *testing.T) {
	event := types.TranscriptEvent{
		Transcript: &types.Transcript{
			Results: []types.Result{
				{IsPartial: true, Alternatives: []types.Alternative{{Transcript: aws.String("Hello")}}},
				{IsPartial: false, Alternatives: []types.Alternative{{Transcript: aws.String("Hello world.")}}},
				{IsPartial: false},
			},
		},
	}
	assert.Equal(t, []string{"Hello world."}, finalAmazonResults(event))
	assert.Nil(t, finalAmazonResults(types.TranscriptEvent{}))
}
