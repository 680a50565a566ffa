package dispatcher

import (
	"context"
	"crypto/md5"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/gomtp/mtproto/internal/mtproto/objects"
)

func newTestDispatcher(cfg Config) *Dispatcher {
	d := New(cfg)
	d.ctx = context.Background()
	return d
}

// withFakeSession pre-populates a signed-in session for dc so file-job tests
// can exercise chunking/MD5/pacing without a real transport or auth-export
// round trip (ensureSignedSession short-circuits once d.sessions[dc].signedIn).
func withFakeSession(d *Dispatcher, dc int32) {
	d.sessions[dc] = &dcSession{id: dc, signedIn: true, haveKey: true, limiter: rate.NewLimiter(rate.Inf, 10)}
}

func TestContinueInitializationReachesReadyWithNoHandlers(t *testing.T) {
	d := newTestDispatcher(Config{})
	d.continueInitialization(0)
	select {
	case <-d.Ready():
	case <-time.After(time.Second):
		t.Fatal("dispatcher never reached Ready with no step handlers configured")
	}
	require.Equal(t, Ready, d.State())
}

func TestContinueInitializationRunsHandlersInOrderAndOnlyOnce(t *testing.T) {
	var mu sync.Mutex
	var calls []InitStep
	handler := func(step InitStep) StepFunc {
		return func(ctx context.Context, d *Dispatcher) error {
			mu.Lock()
			calls = append(calls, step)
			mu.Unlock()
			return nil
		}
	}

	d := newTestDispatcher(Config{StepHandlers: map[InitStep]StepFunc{
		StepDcConfiguration: handler(StepDcConfiguration),
		StepSignIn:          handler(StepSignIn),
		StepKnowSelf:        handler(StepKnowSelf),
		StepContactList:     handler(StepContactList),
		StepChatInfo:        handler(StepChatInfo),
		StepUpdates:         handler(StepUpdates),
	}})
	d.continueInitialization(0)

	select {
	case <-d.Ready():
	case <-time.After(time.Second):
		t.Fatal("dispatcher never reached Ready")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 6)
	require.Equal(t, orderedSteps, calls)
	seen := map[InitStep]int{}
	for _, c := range calls {
		seen[c]++
	}
	for _, step := range orderedSteps {
		require.Equal(t, 1, seen[step], "step %s issued more than once", step)
	}
}

func TestUpdateGapTriggersDebouncedGetDifference(t *testing.T) {
	var calls int32
	var mu sync.Mutex

	d := newTestDispatcher(Config{
		GetDifference: func(ctx context.Context, local objects.UpdatesState) (*objects.UpdatesDifference, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return &objects.UpdatesDifference{State: &objects.UpdatesState{Pts: 110}}, nil
		},
	})
	d.ensureUpdateState(objects.UpdatesState{Pts: 100})

	// pts jumps from 100 to 103 with pts_count=1: gap, not 100+1==103.
	d.handleUpdate(context.Background(), &objects.UpdateNewMessage{PTS: 103, PTSCount: 1})
	// a second gap signal within the debounce window must not issue a
	// second getDifference call.
	d.handleUpdate(context.Background(), &objects.UpdateNewMessage{PTS: 104, PTSCount: 1})

	require.Eventually(t, func() bool {
		return d.currentState().Pts == 110
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(1), calls)

	d.updMu.Lock()
	locked := d.updateLock
	d.updMu.Unlock()
	require.False(t, locked, "update lock must be released after getDifference resolves")
}

func TestUpdateAcceptedWhenPtsCountMatches(t *testing.T) {
	d := newTestDispatcher(Config{})
	d.ensureUpdateState(objects.UpdatesState{Pts: 100})

	d.handleUpdate(context.Background(), &objects.UpdateNewMessage{PTS: 101, PTSCount: 1})

	require.Equal(t, int32(101), d.currentState().Pts)
	select {
	case ev := <-d.Events():
		msg, ok := ev.(*objects.UpdateNewMessage)
		require.True(t, ok)
		require.Equal(t, int32(101), msg.PTS)
	default:
		t.Fatal("accepted update was not forwarded on Events()")
	}
}

func TestBigFileUploadChunkCount(t *testing.T) {
	const size = 12 * 1024 * 1024 // 12 MiB, matches SPEC_FULL.md scenario 5
	data := make([]byte, size)

	var parts int
	var lastPart int32 = -1
	sawMD5 := false

	d := newTestDispatcher(Config{
		ChunkSender: func(ctx context.Context, dc int32, job *FileJob, chunk []byte, isLast bool) error {
			parts++
			require.Greater(t, job.Part, lastPart-1) // monotone, evaluated before bumpPart runs
			lastPart = job.Part
			if isLast && job.MD5Sum() != nil {
				sawMD5 = true
			}
			return nil
		},
	})

	withFakeSession(d, 2)
	job, err := d.Upload(context.Background(), 2, "big.bin", data)
	require.NoError(t, err)
	require.True(t, job.Big)
	require.NoError(t, job.Wait(context.Background()))

	require.Equal(t, 24, parts)
	require.Equal(t, int32(24), job.TotalParts)
	require.Nil(t, job.MD5Sum(), "inputFileBig carries no MD5")
	require.False(t, sawMD5)
}

func TestSmallUploadAccumulatesMD5BeforeFinishing(t *testing.T) {
	data := []byte("hello from the small upload path, chunked at 256 bytes per part")
	expected := md5.Sum(data)

	d := newTestDispatcher(Config{
		ChunkSender: func(ctx context.Context, dc int32, job *FileJob, chunk []byte, isLast bool) error {
			return nil
		},
	})

	withFakeSession(d, 2)
	job, err := d.Upload(context.Background(), 2, "small.bin", data)
	require.NoError(t, err)
	require.False(t, job.Big)
	require.NoError(t, job.Wait(context.Background()))

	require.Equal(t, expected[:], job.MD5Sum())
}

func TestAvatarDownloadIsSingleShotAtAvatarChunkSize(t *testing.T) {
	const avatarBytes = 40000
	var requestedLimits []int32

	d := newTestDispatcher(Config{
		ChunkReceiver: func(ctx context.Context, dc int32, job *FileJob, offset int32, limit int32) ([]byte, error) {
			requestedLimits = append(requestedLimits, limit)
			return make([]byte, avatarBytes), nil
		},
	})

	withFakeSession(d, 2)
	job, err := d.Download(context.Background(), 2, "avatar", avatarBytes, true)
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	require.Equal(t, []int32{avatarChunkSize}, requestedLimits)
	require.Equal(t, int32(1), job.TotalParts)
	require.EqualValues(t, avatarChunkSize, avatarChunkSize) // 512*256 == 131072
	require.Equal(t, int32(131072), int32(avatarChunkSize))
}
