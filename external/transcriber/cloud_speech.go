package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/transcriber"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

// CloudSpeechTranscriber recognizes one PCM chunk per call with the
// synchronous Recognize RPC. The client is created lazily on first use and
// reused for the process lifetime.
type CloudSpeechTranscriber struct {
	cfg CloudSpeechConfig

	initOnce sync.Once
	client   *speech.Client
	initErr  error
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) *CloudSpeechTranscriber {
	cfg.Location = strings.TrimSpace(cfg.Location)
	if cfg.Location == "" {
		cfg.Location = "global"
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &CloudSpeechTranscriber{cfg: cfg}
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (transcriber.Result, error) {
	const op = "transcriber.recognize"

	client, err := t.getClient(ctx)
	if err != nil {
		return transcriber.Result{}, fault.New(fault.ExternalPermanent, op, err)
	}

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.cfg.ProjectID, t.cfg.Location),
		Config: &speechpb.RecognitionConfig{
			Model:         t.cfg.Model,
			LanguageCodes: []string{t.cfg.Language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   int32(sampleRate),
					AudioChannelCount: 1,
				},
			},
			Features: &speechpb.RecognitionFeatures{},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: pcm},
	})
	if err != nil {
		return transcriber.Result{}, fault.New(classifyRPCError(err), op, err)
	}

	// Concatenate result alternatives; confidence is the minimum across parts
	// so a shaky section is not hidden by a confident one.
	var (
		parts      []string
		confidence float64
		haveConf   bool
	)
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		parts = append(parts, text)
		c := float64(alts[0].GetConfidence())
		if !haveConf || c < confidence {
			confidence = c
			haveConf = true
		}
	}
	if len(parts) == 0 {
		// No speech detected. A normal outcome, not an error.
		return transcriber.Result{}, nil
	}
	return transcriber.Result{Text: strings.Join(parts, " "), Confidence: confidence}, nil
}

func (t *CloudSpeechTranscriber) getClient(ctx context.Context) (*speech.Client, error) {
	t.initOnce.Do(func() {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			CredentialsJSON: []byte(t.cfg.CredentialsJSON),
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			t.initErr = fmt.Errorf("detect credentials: %w", err)
			return
		}
		opts := []option.ClientOption{option.WithAuthCredentials(creds)}
		if t.cfg.Location != "global" {
			opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.cfg.Location, speechAPIEndpointPort)))
		}
		t.client, t.initErr = speech.NewClient(ctx, opts...)
	})
	return t.client, t.initErr
}

func (t *CloudSpeechTranscriber) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

func classifyRPCError(err error) fault.Class {
	st, ok := status.FromError(err)
	if !ok {
		return fault.ExternalTransient
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound:
		return fault.ExternalPermanent
	default:
		return fault.ExternalTransient
	}
}

var _ transcriber.Transcriber = (*CloudSpeechTranscriber)(nil)
