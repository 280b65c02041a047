package device

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

const testDelay = 50 * time.Millisecond

type fakeChannel struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.closed:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeChannel) Send(_ context.Context, msg []byte) error {
	select {
	case <-f.closed:
		return ErrChannelClosed
	default:
	}
	f.out <- msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeChannel) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// next waits for one outbound frame.
func (f *fakeChannel) next(t *testing.T) CommandsFrame {
	t.Helper()
	select {
	case msg := <-f.out:
		var frame CommandsFrame
		require.NoError(t, json.Unmarshal(msg, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame sent")
		return CommandsFrame{}
	}
}

// quiet asserts nothing is sent for d.
func (f *fakeChannel) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-f.out:
		t.Fatalf("unexpected frame: %s", msg)
	case <-time.After(d):
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *db.MemoryStore) {
	t.Helper()
	store := db.NewMemoryStore()
	store.PutPlayer(model.Player{ID: 1, Name: "lobby", Token: "tok-1", Percent: model.UnknownPercent})
	store.PutPlayer(model.Player{ID: 2, Name: "bar", Token: "tok-2", Percent: model.UnknownPercent})
	svc := NewService(store, append([]Option{WithDebounce(testDelay)}, opts...)...)
	t.Cleanup(svc.Close)
	return svc, store
}

// connect starts a session for the player and waits until it is registered.
func connect(t *testing.T, svc *Service, playerID int) (*fakeChannel, <-chan error) {
	t.Helper()
	ch := newFakeChannel()
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(context.Background(), model.Player{ID: playerID}, ch)
	}()
	require.Eventually(t, func() bool {
		c, ok := svc.presence.Get(playerID)
		return ok && c.ch == ch
	}, time.Second, 5*time.Millisecond)
	return ch, done
}

func commandNames(cmds []model.Command) []string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Command)
	}
	return names
}

func TestAckRemovesCommandOnce(t *testing.T) {
	store := db.NewMemoryStore()
	q := NewCommandQueue(store)
	ctx := context.Background()

	c, created, err := q.Enqueue(ctx, 1, model.CommandTakeScreenshot)
	require.NoError(t, err)
	require.True(t, created)

	n, err := q.Ack(ctx, 1, []int{c.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = q.Ack(ctx, 1, []int{c.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pending, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, pending)
	assert.Empty(t, pending)
}

func TestUnknownAckLeavesQueueAlone(t *testing.T) {
	store := db.NewMemoryStore()
	q := NewCommandQueue(store)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, 1, model.CommandUploadLogs)
	require.NoError(t, err)

	n, err := q.Ack(ctx, 1, []int{4242})
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{model.CommandUploadLogs}, commandNames(pending))
}

func TestEnqueueDuplicateDoesNotGrow(t *testing.T) {
	q := NewCommandQueue(db.NewMemoryStore())
	ctx := context.Background()

	first, created, err := q.Enqueue(ctx, 1, model.CommandUploadLogs)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := q.Enqueue(ctx, 1, model.CommandUploadLogs)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	pending, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDuplicateRequestSyncKeepsOneCommand(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestSync(ctx, 1))
	require.NoError(t, svc.RequestSync(ctx, 1))

	pending, err := svc.PendingCommands(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{model.CommandSynchronize}, commandNames(pending))
}

func TestTelemetryRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 13, 10, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, WithClock(func() time.Time { return now }))
	ch, _ := connect(t, svc, 1)

	ch.in <- []byte(`{
		"telemetry": {"version": "4.1.0", "time": "2024-05-13T12:00:00+02:00", "disk": {"data": {"available": 50, "total": 200}}},
		"synchronization": {"progress": 0.426},
		"ulogs": []
	}`)

	frame := ch.next(t)
	assert.NotNil(t, frame.Commands)
	assert.Empty(t, frame.Commands)

	p, err := store.GetPlayerByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 25, p.Data)
	assert.Equal(t, 43, p.Percent)
	require.NotNil(t, p.Version)
	assert.Equal(t, "4.1.0", *p.Version)
	require.NotNil(t, p.LastOnline)
	assert.True(t, now.Equal(*p.LastOnline))
}

func TestDeviceDataLogResetsProgress(t *testing.T) {
	p := model.Player{Data: 10, Percent: 80}
	f, err := parseFrame([]byte(`{"ulogs":[{"datetime":"2024-05-13T09:00:00Z","type":"device_data"},{"datetime":"2024-05-13T09:30:00Z","type":"other"}]}`))
	require.NoError(t, err)

	f.apply(&p, time.Now())
	require.NotNil(t, p.LastSync)
	assert.Equal(t, 9, p.LastSync.Hour())
	assert.Equal(t, model.UnknownPercent, p.Percent)
	assert.Equal(t, 10, p.Data)
}

func TestZeroDiskTotalKeepsData(t *testing.T) {
	p := model.Player{Data: 33}
	f, err := parseFrame([]byte(`{"telemetry":{"disk":{"data":{"available":5,"total":0}}},"synchronization":null}`))
	require.NoError(t, err)

	f.apply(&p, time.Now())
	assert.Equal(t, 33, p.Data)
	assert.Equal(t, model.UnknownPercent, p.Percent)
}

func TestRoundTripFlushesPendingAndAcks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	shot, _, err := svc.queue.Enqueue(ctx, 1, model.CommandTakeScreenshot)
	require.NoError(t, err)
	_, _, err = svc.queue.Enqueue(ctx, 1, model.CommandUploadLogs)
	require.NoError(t, err)

	ch, _ := connect(t, svc, 1)
	ch.in <- []byte(`{}`)
	frame := ch.next(t)
	assert.Equal(t, []string{model.CommandTakeScreenshot, model.CommandUploadLogs}, commandNames(frame.Commands))

	ch.in <- []byte(`{"commands_acknowledge":[` + itoa(shot.ID) + `]}`)
	frame = ch.next(t)
	assert.Equal(t, []string{model.CommandUploadLogs}, commandNames(frame.Commands))
}

func TestDirectSyncCancelsDebounceWindow(t *testing.T) {
	svc, _ := newTestService(t, WithDebounce(300*time.Millisecond))
	ch, _ := connect(t, svc, 1)

	ch.in <- []byte(`{}`)
	require.Eventually(t, func() bool { return svc.debounce.Pending(1) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, svc.RequestSync(context.Background(), 1))
	frame := ch.next(t)
	assert.Equal(t, []string{model.CommandSynchronize}, commandNames(frame.Commands))
	assert.Zero(t, svc.debounce.Pending(1))

	ch.quiet(t, 600*time.Millisecond)
}

func TestPendingSyncPreemptsFlush(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.queue.Enqueue(ctx, 1, model.CommandUploadLogs)
	require.NoError(t, err)

	ch, _ := connect(t, svc, 1)
	svc.MarkSyncPending(1)
	require.True(t, svc.AnySyncPending())

	ch.in <- []byte(`{}`)
	frame := ch.next(t)
	assert.ElementsMatch(t, []string{model.CommandUploadLogs, model.CommandSynchronize}, commandNames(frame.Commands))
	assert.False(t, svc.AnySyncPending())
	ch.quiet(t, 4*testDelay)
}

func TestSendCommandToOfflinePlayerWaits(t *testing.T) {
	relay := &recordingRelay{}
	svc, _ := newTestService(t, WithRelay(relay))
	ctx := context.Background()

	delivered, err := svc.SendCommand(ctx, 2, model.CommandTakeScreenshot)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, []int{2}, relay.flushed())

	ch, _ := connect(t, svc, 2)
	ch.in <- []byte(`{}`)
	frame := ch.next(t)
	assert.Equal(t, []string{model.CommandTakeScreenshot}, commandNames(frame.Commands))
}

func TestSendCommandToOnlinePlayerPushesFullList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ch, _ := connect(t, svc, 1)

	delivered, err := svc.SendCommand(ctx, 1, model.CommandUploadLogs)
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, []string{model.CommandUploadLogs}, commandNames(ch.next(t).Commands))

	_, err = svc.SendCommand(ctx, 1, model.CommandTakeScreenshot)
	require.NoError(t, err)
	assert.Equal(t, []string{model.CommandUploadLogs, model.CommandTakeScreenshot}, commandNames(ch.next(t).Commands))
}

func TestSyncAllDrainsPendingSet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.MarkSyncPending(1)
	svc.MarkSyncPending(2)

	n, err := svc.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, svc.AnySyncPending())

	for _, id := range []int{1, 2} {
		pending, err := svc.PendingCommands(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{model.CommandSynchronize}, commandNames(pending))
	}
}

func TestReconnectReplacesStaleConnection(t *testing.T) {
	svc, store := newTestService(t)
	first, firstDone := connect(t, svc, 1)
	second, _ := connect(t, svc, 1)

	select {
	case err := <-firstDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stale session did not end")
	}
	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.True(t, svc.Online(1))

	p, err := store.GetPlayerByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, p.LastOnline)

	second.in <- []byte(`{}`)
	second.next(t)
}

func TestDisconnectRecordsLastOnline(t *testing.T) {
	svc, store := newTestService(t)
	ch, done := connect(t, svc, 1)

	ch.Close()
	require.NoError(t, <-done)
	assert.False(t, svc.Online(1))
	assert.Empty(t, svc.OnlinePlayers())

	p, err := store.GetPlayerByID(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, p.LastOnline)
}

func TestMalformedFrameEndsSession(t *testing.T) {
	svc, _ := newTestService(t)
	ch, done := connect(t, svc, 1)

	ch.in <- []byte(`{"commands_acknowledge": "nope"`)
	assert.Error(t, <-done)
	assert.False(t, svc.Online(1))
	assert.True(t, ch.isClosed())
}

func TestDeactivateClosesConnection(t *testing.T) {
	svc, _ := newTestService(t)
	ch, done := connect(t, svc, 1)

	assert.True(t, svc.Deactivate(1))
	require.NoError(t, <-done)
	assert.True(t, ch.isClosed())
	assert.False(t, svc.Deactivate(1))
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Authenticate(ctx, "OAuth tok-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ID)

	p, err = svc.Authenticate(ctx, "oauth tok-2")
	require.NoError(t, err)
	assert.Equal(t, 2, p.ID)

	_, err = svc.Authenticate(ctx, "Bearer tok-1")
	assert.ErrorIs(t, err, ErrBadScheme)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "OAuth nope")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

type recordingRelay struct {
	mu  sync.Mutex
	ids []int
}

func (r *recordingRelay) PublishFlush(_ context.Context, playerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, playerID)
	return nil
}

func (r *recordingRelay) flushed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ids...)
}

func itoa(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}
