package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	m.Run()
}

type fakeDeliveryStore struct {
	clips      map[string]*db.Clip
	prefs      map[string]db.Preferences
	deliveries []*db.Delivery
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{
		clips: make(map[string]*db.Clip),
		prefs: make(map[string]db.Preferences),
	}
}

func (f *fakeDeliveryStore) GetClip(_ context.Context, id string) (*db.Clip, error) {
	return f.clips[id], nil
}

func (f *fakeDeliveryStore) AdvanceClipStatus(_ context.Context, id string, next db.ClipStatus, _ db.ClipUpdate) error {
	c, ok := f.clips[id]
	if !ok {
		return errors.New("no such clip")
	}
	c.Status = next
	return nil
}

func (f *fakeDeliveryStore) GetPreferences(_ context.Context, userID string) (db.Preferences, error) {
	if p, ok := f.prefs[userID]; ok {
		return p, nil
	}
	return db.DefaultPreferences(userID), nil
}

func (f *fakeDeliveryStore) CreateDelivery(_ context.Context, d *db.Delivery) error {
	d.ID = fmt.Sprintf("d-%d", len(f.deliveries)+1)
	f.deliveries = append(f.deliveries, d)
	return nil
}

func (f *fakeDeliveryStore) MarkDeliverySent(_ context.Context, id string) error {
	return f.setDeliveryStatus(id, db.DeliverySent, "")
}

func (f *fakeDeliveryStore) MarkDeliveryFailed(_ context.Context, id, errText string) error {
	return f.setDeliveryStatus(id, db.DeliveryFailed, errText)
}

func (f *fakeDeliveryStore) setDeliveryStatus(id string, status db.DeliveryStatus, errText string) error {
	for _, d := range f.deliveries {
		if d.ID == id {
			d.Status = status
			d.Error = errText
			return nil
		}
	}
	return errors.New("no such delivery")
}

func (f *fakeDeliveryStore) ListDeliveriesByStatus(_ context.Context, status db.DeliveryStatus, limit int) ([]db.Delivery, error) {
	var out []db.Delivery
	for _, d := range f.deliveries {
		if d.Status == status && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

type fakeMessenger struct {
	dms      []string // recipient ids
	posts    []string // channel ids
	dmErr    error
	postErr  error
	lastBody string
}

func (f *fakeMessenger) SendDirectMessage(_ context.Context, userID, content string) error {
	if f.dmErr != nil {
		return f.dmErr
	}
	f.dms = append(f.dms, userID)
	f.lastBody = content
	return nil
}

func (f *fakeMessenger) PostToChannel(_ context.Context, channelID, content string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, channelID)
	f.lastBody = content
	return nil
}

func readyClip() *db.Clip {
	return &db.Clip{
		ID:       "c1",
		MatchID:  "m1",
		UserID:   "u1",
		Type:     "highlight",
		Title:    "Ace clutch",
		VideoURL: "https://cdn/v.mp4",
		Status:   db.ClipReady,
	}
}

func testEngine(store *fakeDeliveryStore, msgr *fakeMessenger, now time.Time) *Engine {
	return &Engine{Store: store, Messenger: msgr, Now: func() time.Time { return now }}
}

func TestDeliverClipDM(t *testing.T) {
	store := newFakeDeliveryStore()
	store.clips["c1"] = readyClip()
	msgr := &fakeMessenger{}
	e := testEngine(store, msgr, at(12, 0))

	ok, err := e.DeliverClip(context.Background(), "c1", "u1")
	if err != nil {
		t.Fatalf("DeliverClip() error: %v", err)
	}
	if !ok {
		t.Fatal("expected delivery")
	}
	if len(msgr.dms) != 1 || msgr.dms[0] != "u1" {
		t.Errorf("dms = %v, want [u1]", msgr.dms)
	}
	if store.clips["c1"].Status != db.ClipDelivered {
		t.Errorf("clip status = %s, want delivered", store.clips["c1"].Status)
	}
	if len(store.deliveries) != 1 || store.deliveries[0].Status != db.DeliverySent {
		t.Errorf("delivery record = %+v", store.deliveries)
	}
}

func TestDeliverClipNotReady(t *testing.T) {
	store := newFakeDeliveryStore()
	c := readyClip()
	c.Status = db.ClipProcessing
	store.clips["c1"] = c
	msgr := &fakeMessenger{}
	e := testEngine(store, msgr, at(12, 0))

	ok, err := e.DeliverClip(context.Background(), "c1", "u1")
	if err != nil {
		t.Fatalf("DeliverClip() error: %v", err)
	}
	if ok {
		t.Error("processing clip must not deliver")
	}
	if len(store.deliveries) != 0 || len(msgr.dms) != 0 {
		t.Error("not-ready clip must leave no side effects")
	}
}

func TestDeliverClipUnknown(t *testing.T) {
	e := testEngine(newFakeDeliveryStore(), &fakeMessenger{}, at(12, 0))
	ok, err := e.DeliverClip(context.Background(), "ghost", "u1")
	if err != nil || ok {
		t.Errorf("unknown clip: ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestDeliverClipQuietHours(t *testing.T) {
	store := newFakeDeliveryStore()
	store.clips["c1"] = readyClip()
	store.prefs["u1"] = db.Preferences{
		UserID:            "u1",
		DeliveryMethod:    db.DeliverDM,
		QuietHoursEnabled: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "06:00",
	}
	msgr := &fakeMessenger{}
	e := testEngine(store, msgr, at(23, 30))

	ok, err := e.DeliverClip(context.Background(), "c1", "u1")
	if ok {
		t.Error("quiet hours must defer delivery")
	}
	if !errors.Is(err, ErrQuietHours) {
		t.Fatalf("err = %v, want ErrQuietHours", err)
	}
	delay, ok2 := queue.RetryDelayOf(err)
	if !ok2 {
		t.Fatal("quiet-hours error should carry an explicit retry delay")
	}
	if delay != 6*time.Hour+30*time.Minute {
		t.Errorf("retry delay = %v, want 6h30m", delay)
	}
	if len(msgr.dms) != 0 || len(store.deliveries) != 0 {
		t.Error("deferred delivery must leave no side effects")
	}
	if store.clips["c1"].Status != db.ClipReady {
		t.Errorf("clip status = %s, want ready", store.clips["c1"].Status)
	}
}

func TestDeliverClipChannel(t *testing.T) {
	store := newFakeDeliveryStore()
	store.clips["c1"] = readyClip()
	store.prefs["u1"] = db.Preferences{
		UserID:         "u1",
		DeliveryMethod: db.DeliverChannel,
		ChannelID:      "chan-9",
	}
	msgr := &fakeMessenger{}
	e := testEngine(store, msgr, at(12, 0))

	ok, err := e.DeliverClip(context.Background(), "c1", "u1")
	if err != nil || !ok {
		t.Fatalf("DeliverClip() = %v, %v", ok, err)
	}
	if len(msgr.posts) != 1 || msgr.posts[0] != "chan-9" {
		t.Errorf("posts = %v, want [chan-9]", msgr.posts)
	}
	if len(msgr.dms) != 0 {
		t.Errorf("unexpected dms: %v", msgr.dms)
	}
}

func TestDeliverClipChannelFallsBackToDM(t *testing.T) {
	store := newFakeDeliveryStore()
	store.clips["c1"] = readyClip()
	store.prefs["u1"] = db.Preferences{
		UserID:         "u1",
		DeliveryMethod: db.DeliverChannel, // no ChannelID configured
	}
	msgr := &fakeMessenger{}
	e := testEngine(store, msgr, at(12, 0))

	ok, err := e.DeliverClip(context.Background(), "c1", "u1")
	if err != nil || !ok {
		t.Fatalf("DeliverClip() = %v, %v", ok, err)
	}
	if len(msgr.dms) != 1 || msgr.dms[0] != "u1" {
		t.Errorf("dms = %v, want fallback to [u1]", msgr.dms)
	}
	if store.deliveries[0].Method != db.DeliverDM {
		t.Errorf("recorded method = %s, want dm", store.deliveries[0].Method)
	}
}

func TestDeliverClipDispatchFailure(t *testing.T) {
	store := newFakeDeliveryStore()
	store.clips["c1"] = readyClip()
	msgr := &fakeMessenger{dmErr: errors.New("discord 500")}
	e := testEngine(store, msgr, at(12, 0))

	ok, err := e.DeliverClip(context.Background(), "c1", "u1")
	if ok || err == nil {
		t.Fatalf("expected dispatch failure, got ok=%v err=%v", ok, err)
	}
	if store.clips["c1"].Status != db.ClipReady {
		t.Errorf("failed dispatch must leave the clip ready, got %s", store.clips["c1"].Status)
	}
	if len(store.deliveries) != 1 || store.deliveries[0].Status != db.DeliveryFailed {
		t.Errorf("delivery record = %+v", store.deliveries)
	}
	if store.deliveries[0].Error == "" {
		t.Error("failure reason not recorded")
	}
}

func TestRetryFailedDeliveries(t *testing.T) {
	store := newFakeDeliveryStore()
	store.clips["c1"] = readyClip()
	msgr := &fakeMessenger{dmErr: errors.New("discord 500")}
	e := testEngine(store, msgr, at(12, 0))

	if _, err := e.DeliverClip(context.Background(), "c1", "u1"); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	// Outage over: the retry sweep dispatches a fresh attempt.
	msgr.dmErr = nil
	n, err := e.RetryFailedDeliveries(context.Background(), 10)
	if err != nil {
		t.Fatalf("RetryFailedDeliveries() error: %v", err)
	}
	if n != 1 {
		t.Errorf("retried = %d, want 1", n)
	}
	if len(store.deliveries) != 2 {
		t.Fatalf("delivery rows = %d, want 2 (attempt history kept)", len(store.deliveries))
	}
	if store.deliveries[0].Status != db.DeliveryFailed || store.deliveries[1].Status != db.DeliverySent {
		t.Errorf("attempt history = %+v", store.deliveries)
	}
	if store.clips["c1"].Status != db.ClipDelivered {
		t.Errorf("clip status = %s, want delivered", store.clips["c1"].Status)
	}
}
