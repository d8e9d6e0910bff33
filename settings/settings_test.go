package settings

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/model"
)

type memBackend struct {
	st    *model.Settings
	saves int
	fail  error
}

func (m *memBackend) LoadSettings() (model.Settings, error) {
	if m.st == nil {
		d := model.DefaultSettings()
		m.st = &d
	}
	return *m.st, nil
}

func (m *memBackend) SaveSettings(s model.Settings) error {
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.st = &s
	return nil
}

func intp(v int) *int { return &v }

func newService(t *testing.T, creds config.Credentials) (*Service, *memBackend) {
	t.Helper()
	b := &memBackend{}
	svc, err := New(b, creds, nil)
	require.NoError(t, err)
	return svc, b
}

func TestDefaultsSeeded(t *testing.T) {
	svc, _ := newService(t, nil)
	got := svc.Get()
	assert.Equal(t, 43200, got.FetchInterval)
	assert.Equal(t, 3600, got.PostInterval)
	assert.False(t, got.Paused)
	assert.Equal(t, 5, got.MaxPostsPerDay)
	assert.Equal(t, 10.0, got.MinTopicScore)
}

func TestPartialUpdate(t *testing.T) {
	svc, b := newService(t, nil)
	got, err := svc.Update(Update{PostInterval: intp(120)})
	require.NoError(t, err)
	assert.Equal(t, 120, got.PostInterval)
	assert.Equal(t, 43200, got.FetchInterval)
	assert.Equal(t, 120, b.st.PostInterval)
}

func TestInvalidUpdateIsAllOrNothing(t *testing.T) {
	svc, b := newService(t, nil)
	_, err := svc.Update(Update{PostInterval: intp(120), FetchInterval: intp(10)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Contains(t, err.Error(), "fetch_interval")
	assert.Equal(t, model.DefaultSettings(), svc.Get())
	assert.Zero(t, b.saves)

	_, err = svc.Update(Update{MaxPostsPerDay: intp(-1)})
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestZeroDailyCapAllowed(t *testing.T) {
	svc, _ := newService(t, nil)
	got, err := svc.Update(Update{MaxPostsPerDay: intp(0)})
	require.NoError(t, err)
	assert.Zero(t, got.MaxPostsPerDay)
}

func TestSaveFailureKeepsCurrent(t *testing.T) {
	svc, b := newService(t, nil)
	b.fail = errors.New("disk full")
	_, err := svc.Update(Update{PostInterval: intp(120)})
	require.Error(t, err)
	assert.Equal(t, 3600, svc.Get().PostInterval)
}

func TestSubscribeReceivesLatest(t *testing.T) {
	svc, _ := newService(t, nil)
	ch := svc.Subscribe()

	_, err := svc.Update(Update{PostInterval: intp(120)})
	require.NoError(t, err)
	_, err = svc.Update(Update{PostInterval: intp(240)})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, 240, got.PostInterval)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	// unchanged values do not notify
	_, err = svc.Update(Update{PostInterval: intp(240)})
	require.NoError(t, err)
	select {
	case <-ch:
		t.Fatal("unexpected notification")
	default:
	}
}

func TestPauseIsIdempotentAndReflectedInStatus(t *testing.T) {
	svc, _ := newService(t, config.StaticCredentials{Reddit: true, LinkedIn: true})
	assert.True(t, svc.Status().SchedulerRunning)

	for i := 0; i < 2; i++ {
		got, err := svc.SetPaused(true)
		require.NoError(t, err)
		assert.True(t, got.Paused)
	}
	st := svc.Status()
	assert.False(t, st.SchedulerRunning)
	assert.True(t, st.RedditConfigured)
	assert.False(t, st.XConfigured)
	assert.True(t, st.LinkedInConfigured)
	assert.False(t, st.OpenAIConfigured)

	_, err := svc.SetPaused(false)
	require.NoError(t, err)
	assert.True(t, svc.Status().SchedulerRunning)
}
