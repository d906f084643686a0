package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

// absenceLog tallies ABSENT dates per student the way the grouped query does.
type absenceLog struct {
	absences map[string][]time.Time
	students map[string]models.Student
	err      error
	since    time.Time
}

func (a *absenceLog) AbsenceTallies(ctx context.Context, since time.Time, threshold int) ([]models.AbsenceTally, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.since = since
	var out []models.AbsenceTally
	for id, dates := range a.absences {
		n := 0
		for _, d := range dates {
			if !d.Before(since) {
				n++
			}
		}
		if n >= threshold {
			st := a.students[id]
			out = append(out, models.AbsenceTally{StudentID: id, StudentName: st.Name, GroupID: st.GroupID, Absences: n})
		}
	}
	return out, nil
}

func sweepFixture(now time.Time) (*AbsenceSweepService, *absenceLog, *memNotifications) {
	day := func(offset int) time.Time { return models.DateOnly(now).AddDate(0, 0, -offset) }
	log := &absenceLog{
		absences: map[string][]time.Time{
			"s-1": {day(1), day(2), day(4), day(9)},
			"s-2": {day(1), day(2)},
			"s-3": {day(1), day(12), day(15)},
		},
		students: map[string]models.Student{
			"s-1": {ID: "s-1", Name: "Aida", GroupID: strPtr("g-a")},
			"s-2": {ID: "s-2", Name: "Bolot", GroupID: strPtr("g-a")},
			"s-3": {ID: "s-3", Name: "Cholpon", GroupID: strPtr("g-a")},
		},
	}
	store := &memNotifications{}
	sender := NewNotificationService(store, newRecipients(), nil, nil, nil)
	svc := NewAbsenceSweepService(log, newRecipients(), sender, AbsenceSweepConfig{}, nil, nil)
	svc.now = func() time.Time { return now }
	return svc, log, store
}

func TestAbsenceSweepNotifiesParentsAndTeachersOnce(t *testing.T) {
	now := time.Date(2024, 9, 20, 7, 0, 0, 0, time.UTC)
	svc, log, store := sweepFixture(now)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-09-10", log.since.Format(models.DateLayout))
	assert.Equal(t, 1, result.StudentsFlagged)
	assert.Equal(t, 4, result.Notifications)
	assert.Zero(t, result.Failures)
	assert.ElementsMatch(t, []string{"u-par-1", "u-par-2", "u-tch-1", "u-tch-2"}, store.recipients())
	for _, n := range store.items {
		assert.Equal(t, models.NotificationAbsence, n.Type)
		require.NotNil(t, n.StudentID)
		assert.Equal(t, "s-1", *n.StudentID)
		assert.Contains(t, n.Message, "4 times")
	}
}

// Sweeps carry no dedup key, so a second run over the same window notifies again.
func TestAbsenceSweepRerunDuplicates(t *testing.T) {
	now := time.Date(2024, 9, 20, 7, 0, 0, 0, time.UTC)
	svc, _, store := sweepFixture(now)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, store.items, 8)
}

func TestAbsenceSweepStudentWithoutGroup(t *testing.T) {
	now := time.Date(2024, 9, 20, 7, 0, 0, 0, time.UTC)
	svc, log, store := sweepFixture(now)
	log.students["s-1"] = models.Student{ID: "s-1", Name: "Aida"}

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Notifications)
	assert.ElementsMatch(t, []string{"u-par-1", "u-par-2"}, store.recipients())
}

func TestAbsenceSweepMetricsAndErrors(t *testing.T) {
	now := time.Date(2024, 9, 20, 7, 0, 0, 0, time.UTC)
	svc, log, _ := sweepFixture(now)
	metrics := NewMetricsService()
	svc.metrics = metrics

	require.NoError(t, svc.Task(context.Background()))
	assert.Equal(t, float64(1), gatheredValue(t, metrics, "absence_sweep_flagged_students", ""))
	assert.Equal(t, float64(1), gatheredValue(t, metrics, "absence_sweep_runs_total", "ok"))

	log.err = errors.New("db down")
	_, err := svc.Run(context.Background())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))
	assert.Equal(t, float64(1), gatheredValue(t, metrics, "absence_sweep_runs_total", "error"))
}

// gatheredValue reads a counter or gauge sample, optionally the one whose single label equals label.
func gatheredValue(t *testing.T, metrics *MetricsService, name, label string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label != "" && (len(m.GetLabel()) != 1 || m.GetLabel()[0].GetValue() != label) {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}
