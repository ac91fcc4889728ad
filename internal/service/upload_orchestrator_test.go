package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liliang-cn/aidentify/internal/backend"
	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/liliang-cn/aidentify/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newOrchestrator(t *testing.T, fb *fakeBackend) (*UploadOrchestrator, *SessionStore, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	store := newSignedInStore(t, fb, rec)
	return NewUploadOrchestrator(store, fb, rec, nil), store, rec
}

func verdictReply(label string, confidence float64) func(context.Context, *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
	return func(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
		return &domain.AnalyzeResponse{AIMessage: &domain.RawMessage{
			ID:         "v-" + req.File.Name,
			Type:       string(req.File.MediaType()),
			Label:      label,
			Confidence: &confidence,
			Reason:     "model says so",
		}}, nil
	}
}

func TestOrchestrator_AttachRejectsUnsupported(t *testing.T) {
	fb := seededBackend()
	o, _, rec := newOrchestrator(t, fb)

	err := o.Attach(domain.NewAttachment("report.pdf", "application/pdf", []byte("%PDF-1.4 ...")))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMedia)
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Staged())
	assert.Equal(t, []string{RejectedFileMessage}, rec.Messages())

	_, err = o.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrNothingStaged)
	assert.Empty(t, fb.requests)
}

func TestOrchestrator_RejectionKeepsStagedFile(t *testing.T) {
	o, _, _ := newOrchestrator(t, seededBackend())
	require.NoError(t, o.Attach(domain.NewAttachment("a.png", "image/png", pngBytes)))

	require.Error(t, o.Attach(domain.NewAttachment("b.txt", "text/plain", []byte("hello"))))
	assert.Equal(t, StateAttached, o.State())
	assert.Equal(t, "a.png", o.Staged().Name)
}

func TestOrchestrator_AttachReplacesAndCancel(t *testing.T) {
	o, _, _ := newOrchestrator(t, seededBackend())

	require.NoError(t, o.Attach(domain.NewAttachment("a.png", "image/png", pngBytes)))
	require.NoError(t, o.Attach(domain.NewAttachment("b.wav", "audio/x-wav", []byte("RIFF....WAVE"))))
	assert.Equal(t, StateAttached, o.State())
	assert.Equal(t, "b.wav", o.Staged().Name)
	assert.Equal(t, "audio/wav", o.Staged().MIMEType)

	require.NoError(t, o.Cancel())
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Staged())
}

func TestOrchestrator_EndpointByMediaType(t *testing.T) {
	cases := map[string]string{
		"video/mp4": "/api/video/analyze",
		"audio/wav": "/api/audio/analyze",
		"image/png": "/api/image/analyze",
	}
	for mt, want := range cases {
		t.Run(mt, func(t *testing.T) {
			fb := seededBackend()
			fb.analyze = verdictReply("Real", 0.5)
			o, store, _ := newOrchestrator(t, fb)
			store.SelectChat("c1")

			require.NoError(t, o.Attach(domain.NewAttachment("f", mt, []byte("data"))))
			_, err := o.Submit(context.Background())
			require.NoError(t, err)

			require.Len(t, fb.requests, 1)
			assert.Equal(t, want, backend.EndpointFor(fb.requests[0].File.MediaType()))
			assert.Equal(t, mt, fb.requests[0].File.MIMEType)
			assert.Equal(t, "u@example.com", fb.requests[0].Email)
			assert.Equal(t, "c1", fb.requests[0].ChatID)
		})
	}
}

func TestOrchestrator_OptimisticInsertBeforeResponse(t *testing.T) {
	fb := seededBackend()
	started := make(chan struct{})
	release := make(chan struct{})
	fb.analyze = func(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
		close(started)
		<-release
		return verdictReply("AI-Generated", 0.97)(ctx, req)
	}
	o, store, _ := newOrchestrator(t, fb)
	store.SelectChat("c1")
	require.NoError(t, o.Attach(domain.NewAttachment("clip.mp4", "video/mp4", []byte("video-bytes"))))

	type outcome struct {
		res *SubmitResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Submit(context.Background())
		done <- outcome{res, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("analyze was never called")
	}

	chat, _ := store.Chat("c1")
	require.Len(t, chat.Messages, 3)
	pending := chat.Messages[2]
	assert.Equal(t, domain.RoleUser, pending.Role)
	assert.Equal(t, domain.MediaVideo, pending.Type)
	require.NotNil(t, pending.File)
	assert.Equal(t, "clip.mp4", pending.File.Name)
	assert.Empty(t, pending.Result)
	assert.True(t, o.IsAnalyzing())
	assert.Equal(t, StateSubmitting, o.State())

	// the store stays usable while the submission is outstanding
	store.SelectChat("c2")
	store.SelectChat("c1")

	// overlapping submissions are refused
	_, err := o.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)
	assert.ErrorIs(t, o.Attach(domain.NewAttachment("x.png", "image/png", pngBytes)), domain.ErrSubmissionInFlight)

	close(release)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, OutcomeAppend, out.res.Outcome)

	chat, _ = store.Chat("c1")
	require.Len(t, chat.Messages, 4)
	assert.Equal(t, pending.ID, chat.Messages[2].ID)
	verdict := chat.Messages[3]
	assert.Equal(t, domain.RoleAIdentify, verdict.Role)
	assert.Equal(t, domain.ResultAI, verdict.Result)
	assert.Equal(t, 0.97, verdict.Confidence)
	assert.Equal(t, "model says so", verdict.Reason)

	assert.False(t, o.IsAnalyzing())
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Staged())
}

func TestOrchestrator_NewChatPath(t *testing.T) {
	fb := seededBackend()
	fb.analyze = func(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
		fb.setHistory(
			rawChat("c9", "song.mp3",
				domain.RawMessage{ID: "u", Role: "user", Type: "audio", Content: "https://cdn/song.mp3"},
				domain.RawMessage{ID: "v", Role: "aidentify", Type: "audio", Label: "human", Confidence: f64(81)},
			),
		)
		return &domain.AnalyzeResponse{ChatID: "c9"}, nil
	}
	o, store, _ := newOrchestrator(t, fb)
	store.CreateNewChat()

	require.NoError(t, o.Attach(domain.NewAttachment("song.mp3", "audio/mpeg", []byte("ID3..."))))
	res, err := o.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNewChat, res.Outcome)
	assert.Equal(t, "c9", res.ChatID)
	assert.Nil(t, res.UserMessage)
	assert.Empty(t, fb.requests[0].ChatID)

	assert.Equal(t, "c9", store.SelectedChatID())
	chat, ok := store.SelectedChat()
	require.True(t, ok)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, domain.ResultReal, chat.Messages[1].Result)
	assert.InDelta(t, 0.81, chat.Messages[1].Confidence, 1e-9)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_NoSelectionNeverInsertsOptimistically(t *testing.T) {
	fb := seededBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	fb.analyze = func(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
		close(started)
		<-release
		return nil, errNetwork
	}
	o, store, _ := newOrchestrator(t, fb)
	before := store.Chats()

	require.NoError(t, o.Attach(domain.NewAttachment("a.png", "", pngBytes)))
	assert.Equal(t, "image/png", o.Staged().MIMEType)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background())
		done <- err
	}()
	<-started
	assert.Equal(t, before, store.Chats())
	close(release)
	assert.Error(t, <-done)
	assert.Equal(t, before, store.Chats())
}

func TestOrchestrator_StaleSelectionStartsNewChat(t *testing.T) {
	fb := seededBackend()
	fb.analyze = verdictReply("AI-Generated", 0.8)
	o, store, _ := newOrchestrator(t, fb)
	store.SelectChat("ghost")
	before := store.Chats()

	require.NoError(t, o.Attach(domain.NewAttachment("a.png", "image/png", pngBytes)))
	res, err := o.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNewChat, res.Outcome)
	assert.Nil(t, res.UserMessage)
	assert.Nil(t, res.Verdict)

	fb.mu.Lock()
	require.Len(t, fb.requests, 1)
	assert.Empty(t, fb.requests[0].ChatID)
	fb.mu.Unlock()

	// history was refetched instead of appending into a chat that does not exist
	assert.Equal(t, 2, fb.calls())
	assert.Equal(t, before, store.Chats())
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_FailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    domain.FailureKind
		message string
	}{
		{"connectivity", errNetwork, domain.FailureConnectivity, UnreachableMessage},
		{"server", &backend.StatusError{Status: 500, Detail: "model crashed"}, domain.FailureServer, "Error 500: model crashed"},
		{"server without detail", &backend.StatusError{Status: 413}, domain.FailureServer, "Error 413: Unknown"},
		{"unknown", errors.New("json: cannot unmarshal"), domain.FailureUnknown, UploadFailedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := seededBackend()
			fb.analyze = func(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
				return nil, tt.err
			}
			o, store, rec := newOrchestrator(t, fb)
			store.SelectChat("c2")
			require.NoError(t, o.Attach(domain.NewAttachment("a.png", "image/png", pngBytes)))

			res, err := o.Submit(context.Background())
			require.Error(t, err)

			var se *domain.SubmitError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, []string{tt.message}, rec.Messages())

			// the artifact row stays, with no verdict after it
			chat, _ := store.Chat("c2")
			require.Len(t, chat.Messages, 1)
			assert.Equal(t, domain.RoleUser, chat.Messages[0].Role)

			assert.Equal(t, StateIdle, o.State())
			assert.False(t, o.IsAnalyzing())
			assert.Nil(t, o.Staged())
		})
	}
}

func TestOrchestrator_MalformedResponse(t *testing.T) {
	fb := seededBackend()
	fb.analyze = func(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
		return &domain.AnalyzeResponse{}, nil
	}
	o, _, rec := newOrchestrator(t, fb)
	require.NoError(t, o.Attach(domain.NewAttachment("a.png", "image/png", pngBytes)))

	_, err := o.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Equal(t, []string{UploadFailedMessage}, rec.Messages())
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_VerdictWithoutSelectionRefreshes(t *testing.T) {
	fb := seededBackend()
	fb.analyze = func(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
		return &domain.AnalyzeResponse{ChatID: "c2", AIMessage: &domain.RawMessage{Label: "ai"}}, nil
	}
	o, store, _ := newOrchestrator(t, fb)
	calls := fb.calls()
	require.NoError(t, o.Attach(domain.NewAttachment("a.png", "image/png", pngBytes)))

	res, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNewChat, res.Outcome)
	assert.Equal(t, calls+1, fb.calls())
	assert.Equal(t, "c2", store.SelectedChatID())
}

func TestOrchestrator_SubmitRequiresUser(t *testing.T) {
	fb := seededBackend()
	rec := &notify.Recorder{}
	store := NewSessionStore(fb, nil, rec, nil)
	o := NewUploadOrchestrator(store, fb, rec, nil)

	require.NoError(t, o.Attach(domain.NewAttachment("a.png", "image/png", pngBytes)))
	_, err := o.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoUser)
	assert.Equal(t, StateAttached, o.State())
	assert.Empty(t, fb.requests)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, UploadFailedMessage, FailureMessage(errors.New("x")))
	assert.Equal(t, UnreachableMessage, FailureMessage(&domain.SubmitError{Kind: domain.FailureConnectivity}))
}
