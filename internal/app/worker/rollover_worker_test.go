package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/repository"
)

type stubLeaderboardRepo struct {
	due     []model.Leaderboard
	targets []model.Leaderboard
	listErr error
}

func (s *stubLeaderboardRepo) Create(context.Context, *model.Leaderboard) error { return nil }
func (s *stubLeaderboardRepo) Update(context.Context, *sql.Tx, *model.Leaderboard) error {
	return nil
}
func (s *stubLeaderboardRepo) FindByID(context.Context, string) (*model.Leaderboard, error) {
	return nil, common.ErrNotFound
}
func (s *stubLeaderboardRepo) ListActive(context.Context, int, int, string) ([]model.Leaderboard, int, error) {
	return nil, 0, nil
}
func (s *stubLeaderboardRepo) HardDelete(context.Context, string) error { return nil }
func (s *stubLeaderboardRepo) FindDueForReset(context.Context, time.Time) ([]model.Leaderboard, error) {
	return s.due, s.listErr
}
func (s *stubLeaderboardRepo) FindSnapshotTargets(context.Context) ([]model.Leaderboard, error) {
	return s.targets, s.listErr
}
func (s *stubLeaderboardRepo) UpdateResetDates(context.Context, *sql.Tx, string, time.Time, *time.Time) error {
	return nil
}

var _ repository.LeaderboardRepository = (*stubLeaderboardRepo)(nil)

type stubAdmin struct {
	resetCalls    []string
	snapshotCalls []string
	failOn        map[string]error
}

func (s *stubAdmin) Reset(_ context.Context, id string, _ model.SnapshotType) error {
	s.resetCalls = append(s.resetCalls, id)
	return s.failOn[id]
}

func (s *stubAdmin) CreateSnapshot(_ context.Context, id string, _ model.SnapshotType) (*model.LeaderboardSnapshot, error) {
	s.snapshotCalls = append(s.snapshotCalls, id)
	if err := s.failOn[id]; err != nil {
		return nil, err
	}
	return &model.LeaderboardSnapshot{LeaderboardID: id}, nil
}

func dueBoard(id string, period model.ResetPeriod) model.Leaderboard {
	past := time.Now().Add(-time.Hour)
	return model.Leaderboard{
		ID:            id,
		Name:          "Board " + id,
		ScoringModel:  model.ScoringHighestScore,
		ResetPeriod:   period,
		IsActive:      true,
		NextResetDate: &past,
	}
}

func TestSweepResetsAllDueBoards(t *testing.T) {
	repo := &stubLeaderboardRepo{due: []model.Leaderboard{
		dueBoard("a", model.ResetDaily),
		dueBoard("b", model.ResetWeekly),
	}}
	admin := &stubAdmin{failOn: map[string]error{}}

	w := NewRolloverWorker(repo, admin, time.Hour, 0)
	w.sweepResets(context.Background(), time.Now())

	assert.Equal(t, []string{"a", "b"}, admin.resetCalls)
}

func TestSweepResetsIsolatesFailures(t *testing.T) {
	repo := &stubLeaderboardRepo{due: []model.Leaderboard{
		dueBoard("a", model.ResetDaily),
		dueBoard("b", model.ResetDaily),
		dueBoard("c", model.ResetDaily),
	}}
	admin := &stubAdmin{failOn: map[string]error{"b": errors.New("boom")}}

	w := NewRolloverWorker(repo, admin, time.Hour, 0)
	w.sweepResets(context.Background(), time.Now())

	assert.Equal(t, []string{"a", "b", "c"}, admin.resetCalls,
		"one board's failure must not stop the sweep")
}

func TestSweepResetsSkipsInvalidConfiguration(t *testing.T) {
	bad := dueBoard("bad", model.ResetPeriod("fortnightly"))
	repo := &stubLeaderboardRepo{due: []model.Leaderboard{
		bad,
		dueBoard("good", model.ResetDaily),
	}}
	admin := &stubAdmin{failOn: map[string]error{}}

	w := NewRolloverWorker(repo, admin, time.Hour, 0)
	w.sweepResets(context.Background(), time.Now())

	assert.Equal(t, []string{"good"}, admin.resetCalls)
}

func TestDailySnapshotSweepRunsOnlyAtConfiguredHour(t *testing.T) {
	repo := &stubLeaderboardRepo{targets: []model.Leaderboard{
		dueBoard("a", model.ResetNever),
	}}
	admin := &stubAdmin{failOn: map[string]error{}}

	w := NewRolloverWorker(repo, admin, time.Hour, 3)

	atThree := time.Date(2025, 3, 14, 3, 0, 1, 0, time.UTC)
	w.tick(context.Background(), atThree)
	require.Len(t, admin.snapshotCalls, 1)

	atNoon := time.Date(2025, 3, 14, 12, 0, 1, 0, time.UTC)
	w.tick(context.Background(), atNoon)
	assert.Len(t, admin.snapshotCalls, 1, "no snapshot outside the configured hour")
}

func TestSnapshotSweepIsolatesFailures(t *testing.T) {
	repo := &stubLeaderboardRepo{targets: []model.Leaderboard{
		dueBoard("a", model.ResetNever),
		dueBoard("b", model.ResetNever),
	}}
	admin := &stubAdmin{failOn: map[string]error{"a": errors.New("boom")}}

	w := NewRolloverWorker(repo, admin, time.Hour, 0)
	w.sweepDailySnapshots(context.Background())

	assert.Len(t, admin.snapshotCalls, 2)
}

func TestSnapshotTypeForPeriod(t *testing.T) {
	assert.Equal(t, model.SnapshotDaily, snapshotTypeFor(model.ResetDaily))
	assert.Equal(t, model.SnapshotWeekly, snapshotTypeFor(model.ResetWeekly))
	assert.Equal(t, model.SnapshotMonthly, snapshotTypeFor(model.ResetMonthly))
	assert.Equal(t, model.SnapshotManual, snapshotTypeFor(model.ResetNever))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := &stubLeaderboardRepo{}
	admin := &stubAdmin{failOn: map[string]error{}}
	w := NewRolloverWorker(repo, admin, 10*time.Millisecond, 25)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
