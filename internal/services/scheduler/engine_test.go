package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronet/hydronet/internal/model"
	"github.com/hydronet/hydronet/internal/model/messages"
	"github.com/hydronet/hydronet/internal/schedule"
)

// mondayAt returns a UTC Monday at the given clock time.
func mondayAt(hour, min int) time.Time {
	base := time.Date(2026, time.August, 24, hour, min, 0, 0, time.UTC)
	offset := (int(time.Monday) - int(base.Weekday()) + 7) % 7
	return base.AddDate(0, 0, offset)
}

func activeSchedule(serial, topic string, days schedule.DaySet, start, end int) model.ActiveSchedule {
	return model.ActiveSchedule{
		Schedule: model.Schedule{
			ID:                 "sched-" + serial,
			RegistrationSerial: serial,
			Days:               days,
			StartMinute:        start,
			EndMinute:          end,
			Active:             true,
		},
		Topic: topic,
	}
}

func TestTickFiresOnAtWindowStart(t *testing.T) {
	schedules := []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
		activeSchedule("B2", "serieB/sb/B2", schedule.DaysOf(time.Monday), 9*60, 10*60),
	}

	cmds := Tick(mondayAt(13, 0), schedules)

	require.Len(t, cmds, 1)
	assert.Equal(t, "serieA/sa/A1/in", cmds[0].Topic)
	assert.Equal(t, messages.ActuationPayload{Pump: messages.PumpOn, Valve: messages.ValveClosed}, cmds[0].Payload)
}

func TestTickFiresOffAtWindowEnd(t *testing.T) {
	schedules := []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
	}

	cmds := Tick(mondayAt(13, 30), schedules)

	require.Len(t, cmds, 1)
	assert.Equal(t, messages.ActuationPayload{Pump: messages.PumpOff, Valve: messages.ValveOpen}, cmds[0].Payload)
	assert.JSONEq(t, `{"bomba":"apagada","valvula":"abierta"}`, string(cmds[0].Body()))
}

func TestTickQuietInsideAndAroundWindow(t *testing.T) {
	schedules := []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
	}

	for _, at := range []time.Time{
		mondayAt(12, 59),
		mondayAt(13, 1),
		mondayAt(13, 15),
		mondayAt(13, 29),
		mondayAt(13, 31),
	} {
		assert.Empty(t, Tick(at, schedules), "at %s", at)
	}
}

func TestTickIgnoresNonMatchingDay(t *testing.T) {
	schedules := []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Tuesday), 13*60, 13*60+30),
	}

	assert.Empty(t, Tick(mondayAt(13, 0), schedules))
}

func TestTickZeroDurationNeverFires(t *testing.T) {
	schedules := []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.AllDays, 13*60, 13*60),
	}

	assert.Empty(t, Tick(mondayAt(13, 0), schedules))
}

func TestTickNoSchedulesNoCommands(t *testing.T) {
	assert.Empty(t, Tick(mondayAt(13, 0), nil))
}

func TestTickCoincidingBoundariesBothFire(t *testing.T) {
	// Two windows for the same registration whose boundaries collide: the
	// engine emits both; the device applies the last one.
	schedules := []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 12*60, 13*60),
		activeSchedule("A1b", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 14*60),
	}

	cmds := Tick(mondayAt(13, 0), schedules)

	require.Len(t, cmds, 2)
	assert.Equal(t, messages.PumpOff, cmds[0].Payload.Pump)
	assert.Equal(t, messages.PumpOn, cmds[1].Payload.Pump)
}

func TestTickSecondsDoNotMatter(t *testing.T) {
	schedules := []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
	}

	at := mondayAt(13, 0).Add(42 * time.Second)
	cmds := Tick(at, schedules)

	require.Len(t, cmds, 1)
	assert.Equal(t, messages.PumpOn, cmds[0].Payload.Pump)
}

/************* engine loop *************/

type fakeSource struct {
	schedules []model.ActiveSchedule
	err       error
	block     chan struct{}
}

func (f *fakeSource) ListActiveSchedules(context.Context) ([]model.ActiveSchedule, error) {
	if f.block != nil {
		<-f.block
	}
	return f.schedules, f.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, topic)
	return nil
}

func (f *fakePublisher) Close() {}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func TestEngineTickPublishesDueCommands(t *testing.T) {
	src := &fakeSource{schedules: []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
	}}
	pub := &fakePublisher{}
	eng, err := NewEngine(src, pub, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)

	eng.tick(context.Background(), mondayAt(13, 0))

	assert.Equal(t, []string{"serieA/sa/A1/in"}, pub.topics())
}

func TestEngineTickSurvivesSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("store down")}
	pub := &fakePublisher{}
	eng, err := NewEngine(src, pub, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)

	eng.tick(context.Background(), mondayAt(13, 0))

	assert.Empty(t, pub.topics())
	assert.False(t, eng.inFlight.Load())
}

func TestEngineTickSurvivesPublishError(t *testing.T) {
	src := &fakeSource{schedules: []model.ActiveSchedule{
		activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
		activeSchedule("B2", "serieB/sb/B2", schedule.DaysOf(time.Monday), 13*60, 14*60),
	}}
	pub := &fakePublisher{err: errors.New("broker gone")}
	eng, err := NewEngine(src, pub, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)

	eng.tick(context.Background(), mondayAt(13, 0))

	assert.Empty(t, pub.topics())
	assert.False(t, eng.inFlight.Load())
}

func TestEngineSkipsOverlappingTick(t *testing.T) {
	block := make(chan struct{})
	src := &fakeSource{
		schedules: []model.ActiveSchedule{
			activeSchedule("A1", "serieA/sa/A1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
		},
		block: block,
	}
	pub := &fakePublisher{}
	eng, err := NewEngine(src, pub, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		eng.tick(context.Background(), mondayAt(13, 0))
		close(done)
	}()

	// Wait for the first tick to be in flight, then fire a second one: it
	// must return immediately without evaluating.
	require.Eventually(t, func() bool { return eng.inFlight.Load() }, time.Second, time.Millisecond)
	eng.tick(context.Background(), mondayAt(13, 0))
	assert.Empty(t, pub.topics())

	close(block)
	<-done
	assert.Equal(t, []string{"serieA/sa/A1/in"}, pub.topics())
}

// End-to-end scenario: one Monday 13:00–13:30 window drives exactly one on
// and one off command over the half hour.
func TestEngineEndToEndWindow(t *testing.T) {
	src := &fakeSource{schedules: []model.ActiveSchedule{
		activeSchedule("R1", "serieA/sa/R1", schedule.DaysOf(time.Monday), 13*60, 13*60+30),
	}}

	on := Tick(mondayAt(13, 0), src.schedules)
	mid := Tick(mondayAt(13, 15), src.schedules)
	off := Tick(mondayAt(13, 30), src.schedules)

	require.Len(t, on, 1)
	assert.Equal(t, "serieA/sa/R1/in", on[0].Topic)
	assert.JSONEq(t, `{"bomba":"encendida","valvula":"cerrada"}`, string(on[0].Body()))
	assert.Empty(t, mid)
	require.Len(t, off, 1)
	assert.JSONEq(t, `{"bomba":"apagada","valvula":"abierta"}`, string(off[0].Body()))
}
