package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"FightScore/internal/config"
	"FightScore/internal/model"
	"FightScore/internal/repository"
	"FightScore/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultMatchCfg = config.MatchConfig{DefaultTotalRounds: 3, DefaultRoundDurationMinutes: 2}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, cfg config.MatchConfig) (*MatchService, repository.MatchRepository, *fakeClock) {
	t.Helper()
	repo := repository.NewMatchRepository(testutil.NewSQLiteDB(t))
	svc := NewMatchService(repo, cfg, testutil.NewLogger())
	clock := &fakeClock{now: time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	return svc, repo, clock
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

func createReq(rounds int) *CreateMatchRequest {
	return &CreateMatchRequest{
		WeightCategory:        "-58kg",
		RedCompetitorName:     "Jun",
		RedCompetitorCountry:  "KOR",
		BlueCompetitorName:    "Pérez",
		BlueCompetitorCountry: "ESP",
		TotalRounds:           intPtr(rounds),
	}
}

func startedMatch(t *testing.T, svc *MatchService, rounds int) *model.Match {
	t.Helper()
	ctx := context.Background()
	m, err := svc.CreateMatch(ctx, createReq(rounds))
	require.NoError(t, err)
	_, err = svc.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	return m
}

func TestCreateMatch_Defaults(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()

	req := createReq(0)
	req.TotalRounds = nil
	m, err := svc.CreateMatch(ctx, req)
	require.NoError(t, err)

	assert.NotEmpty(t, m.MatchUUID)
	assert.Equal(t, model.MatchStatusUpcoming, m.Status)
	assert.Equal(t, 1, m.CurrentRound)
	assert.Equal(t, 3, m.TotalRounds)
	assert.Equal(t, 2, m.RoundDurationMinutes)
	assert.Zero(t, m.RedTotalScore)
	assert.Zero(t, m.BlueTotalScore)
	assert.Nil(t, m.WinnerColor)

	detail, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Rounds)

	cmds, err := repo.ListCommands(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandCreate, cmds[0].Command)
}

func TestCreateMatch_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()

	_, err := svc.CreateMatch(ctx, createReq(6))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.CreateMatch(ctx, createReq(0))
	assert.ErrorIs(t, err, ErrInvalidState)

	req := createReq(3)
	req.RoundDurationMinutes = floatPtr(11)
	_, err = svc.CreateMatch(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidState)

	req = createReq(3)
	req.RedCompetitorName = "  "
	_, err = svc.CreateMatch(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidInput)

	for _, minutes := range []float64{0.5, 0.9, 10.4} {
		req = createReq(3)
		req.RoundDurationMinutes = floatPtr(minutes)
		_, err = svc.CreateMatch(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidState, "round_duration_minutes=%v", minutes)
	}

	req = createReq(3)
	req.RoundDurationMinutes = floatPtr(1.5)
	m, err := svc.CreateMatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, m.RoundDurationMinutes)

	list, err := svc.ListMatches(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSingleRoundMatch_RoundTrip(t *testing.T) {
	svc, _, clock := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 1)

	clock.Advance(10 * time.Second)
	_, err := svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniqueHeadKick)
	require.NoError(t, err)
	clock.Advance(5 * time.Second)
	_, err = svc.RecordScore(ctx, m.ID, model.ColorBlue, model.TechniquePunch)
	require.NoError(t, err)
	clock.Advance(45 * time.Second)

	detail, err := svc.EndRound(ctx, m.ID)
	require.NoError(t, err)

	got := detail.Match
	assert.Equal(t, model.MatchStatusCompleted, got.Status)
	assert.Equal(t, 3, got.RedTotalScore)
	assert.Equal(t, 1, got.BlueTotalScore)
	require.NotNil(t, got.WinnerColor)
	assert.Equal(t, model.ColorRed, *got.WinnerColor)
	assert.Nil(t, detail.CurrentRound)

	require.Len(t, detail.Rounds, 1)
	r := detail.Rounds[0]
	assert.Equal(t, 3, r.RedScore)
	assert.Equal(t, 1, r.BlueScore)
	require.NotNil(t, r.WinnerColor)
	assert.Equal(t, model.ColorRed, *r.WinnerColor)
	require.NotNil(t, r.DurationSeconds)
	assert.Equal(t, 60, *r.DurationSeconds)

	require.Len(t, detail.ScoreEntries, 2)
	assert.Equal(t, model.TechniqueHeadKick, detail.ScoreEntries[0].ScoreType)
	assert.Equal(t, model.TechniquePunch, detail.ScoreEntries[1].ScoreType)

	_, err = svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniquePunch)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.EndRound(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEndRound_AdvancesToNextRound(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 3)

	_, err := svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniqueBodyKick)
	require.NoError(t, err)
	_, err = svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniqueBodyKick)
	require.NoError(t, err)
	_, err = svc.RecordScore(ctx, m.ID, model.ColorBlue, model.TechniqueBodyKick)
	require.NoError(t, err)

	detail, err := svc.EndRound(ctx, m.ID)
	require.NoError(t, err)

	assert.Equal(t, model.MatchStatusOngoing, detail.Match.Status)
	assert.Equal(t, 2, detail.Match.CurrentRound)
	assert.Nil(t, detail.Match.WinnerColor)
	require.Len(t, detail.Rounds, 2)

	first := detail.Rounds[0]
	assert.Equal(t, 4, first.RedScore)
	assert.Equal(t, 2, first.BlueScore)
	require.NotNil(t, first.WinnerColor)
	assert.Equal(t, model.ColorRed, *first.WinnerColor)

	require.NotNil(t, detail.CurrentRound)
	assert.Equal(t, 2, detail.CurrentRound.RoundNumber)
	assert.Zero(t, detail.CurrentRound.RedScore)
	assert.Zero(t, detail.CurrentRound.BlueScore)
	assert.Nil(t, detail.CurrentRound.StartedAt)
	assert.Nil(t, detail.CurrentRound.EndedAt)
}

func TestFivePenalties_DisqualifyRound(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 1)

	var err error
	for i := 0; i < 3; i++ {
		_, err = svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniqueTurningHeadKick)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err = svc.RecordPenalty(ctx, m.ID, model.ColorRed, model.PenaltyGrab)
		require.NoError(t, err)
	}

	detail, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentRound)
	assert.Equal(t, 15, detail.CurrentRound.RedScore)
	assert.Equal(t, 5, detail.CurrentRound.RedPenalties)
	assert.Equal(t, 5, detail.CurrentRound.BlueScore)
	assert.Len(t, detail.PenaltyEntries, 5)

	detail, err = svc.EndRound(ctx, m.ID)
	require.NoError(t, err)
	r := detail.Rounds[0]
	require.NotNil(t, r.WinnerColor)
	assert.Equal(t, model.ColorBlue, *r.WinnerColor)

	// 回合判负不影响按总分判定比赛胜方
	require.NotNil(t, detail.Match.WinnerColor)
	assert.Equal(t, model.ColorRed, *detail.Match.WinnerColor)
	assert.Equal(t, 15, detail.Match.RedTotalScore)
	assert.Equal(t, 5, detail.Match.BlueTotalScore)
}

func TestLifecycle_Transitions(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m, err := svc.CreateMatch(ctx, createReq(2))
	require.NoError(t, err)

	_, err = svc.PauseMatch(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.ResumeMatch(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.EndRound(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniquePunch)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	detail, err := svc.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusOngoing, detail.Match.Status)
	require.NotNil(t, detail.CurrentRound)
	assert.NotNil(t, detail.CurrentRound.StartedAt)

	_, err = svc.StartMatch(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.RecordScore(ctx, m.ID, model.ColorBlue, model.TechniqueBodyKick)
	require.NoError(t, err)

	detail, err = svc.PauseMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusPaused, detail.Match.Status)

	_, err = svc.RecordScore(ctx, m.ID, model.ColorBlue, model.TechniqueBodyKick)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RecordPenalty(ctx, m.ID, model.ColorBlue, model.PenaltyFallDown)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.PauseMatch(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	detail, err = svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Match.BlueTotalScore)
	assert.Len(t, detail.ScoreEntries, 1)
	assert.Empty(t, detail.PenaltyEntries)

	detail, err = svc.ResumeMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusOngoing, detail.Match.Status)

	_, err = svc.EndRound(ctx, m.ID)
	require.NoError(t, err)
	detail, err = svc.EndRound(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusCompleted, detail.Match.Status)
	require.NotNil(t, detail.Match.WinnerColor)
	assert.Equal(t, model.ColorBlue, *detail.Match.WinnerColor)

	_, err = svc.ResumeMatch(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCommands_UnknownMatch(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()

	_, err := svc.StartMatch(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetMatchDetail(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.RecordScore(ctx, 999, model.ColorRed, model.TechniquePunch)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecord_InvalidInputLeavesTotals(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 3)

	_, err := svc.RecordScore(ctx, m.ID, model.Color("green"), model.TechniquePunch)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RecordScore(ctx, m.ID, model.ColorRed, model.Technique("elbow"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RecordPenalty(ctx, m.ID, model.ColorRed, model.PenaltyType("bite"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := repo.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RedTotalScore)
	assert.Zero(t, got.BlueTotalScore)

	cmds, err := repo.ListCommands(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, cmds, 2)
}

func TestGetMatchDetail_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 3)
	_, err := svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniqueBodyKick)
	require.NoError(t, err)
	_, err = svc.RecordPenalty(ctx, m.ID, model.ColorBlue, model.PenaltyOutOfBounds)
	require.NoError(t, err)

	first, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	second, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveMatchID(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m, err := svc.CreateMatch(ctx, createReq(3))
	require.NoError(t, err)

	id, err := svc.ResolveMatchID(ctx, m.MatchUUID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, id)

	id, err = svc.ResolveMatchID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = svc.ResolveMatchID(ctx, "not-a-match")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ResolveMatchID(ctx, "00000000-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMatch(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 3)
	_, err := svc.EndRound(ctx, m.ID)
	require.NoError(t, err)

	got, err := svc.UpdateMatch(ctx, m.ID, MatchPatch{
		BlueCompetitorName: strPtr("Martínez"),
		TotalRounds:        intPtr(4),
	})
	require.NoError(t, err)
	assert.Equal(t, "Martínez", got.BlueCompetitorName)
	assert.Equal(t, "Jun", got.RedCompetitorName)
	assert.Equal(t, 4, got.TotalRounds)

	_, err = svc.UpdateMatch(ctx, m.ID, MatchPatch{TotalRounds: intPtr(1)})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.UpdateMatch(ctx, m.ID, MatchPatch{RoundDurationMinutes: floatPtr(0.7)})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.UpdateMatch(ctx, m.ID, MatchPatch{RoundDurationMinutes: floatPtr(10.3)})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.UpdateMatch(ctx, m.ID, MatchPatch{WeightCategory: strPtr("")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	detail, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, detail.Match.TotalRounds)
	assert.Equal(t, 2, detail.Match.RoundDurationMinutes)
	assert.Equal(t, "-58kg", detail.Match.WeightCategory)
}

func TestUpdateMatch_CompletedKeepsRoundSettings(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 1)
	_, err := svc.EndRound(ctx, m.ID)
	require.NoError(t, err)

	_, err = svc.UpdateMatch(ctx, m.ID, MatchPatch{TotalRounds: intPtr(3)})
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := svc.UpdateMatch(ctx, m.ID, MatchPatch{RedCompetitorCountry: strPtr("PRK")})
	require.NoError(t, err)
	assert.Equal(t, "PRK", got.RedCompetitorCountry)
	assert.Equal(t, model.MatchStatusCompleted, got.Status)
}

func TestStartRound(t *testing.T) {
	svc, _, clock := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 2)

	_, err := svc.StartRound(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.EndRound(ctx, m.ID)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	detail, err := svc.StartRound(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentRound.StartedAt)
	assert.True(t, clock.Now().Equal(*detail.CurrentRound.StartedAt))

	clock.Advance(90 * time.Second)
	detail, err = svc.EndRound(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, *detail.Rounds[1].DurationSeconds)
}

func TestEndRound_AutoStartNextRound(t *testing.T) {
	cfg := defaultMatchCfg
	cfg.AutoStartRounds = true
	svc, _, _ := newTestService(t, cfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 2)

	detail, err := svc.EndRound(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentRound)
	assert.NotNil(t, detail.CurrentRound.StartedAt)

	_, err = svc.StartRound(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConcurrentScoring_NoLostUpdates(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 3)

	const workers = 8
	const perWorker = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				var err error
				if w%2 == 0 {
					_, err = svc.RecordScore(ctx, m.ID, model.ColorRed, model.TechniqueBodyKick)
				} else {
					_, err = svc.RecordPenalty(ctx, m.ID, model.ColorRed, model.PenaltyFallDown)
				}
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	detail, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, workers/2*perWorker*2, detail.Match.RedTotalScore)
	assert.Equal(t, workers/2*perWorker, detail.Match.BlueTotalScore)
	assert.Len(t, detail.ScoreEntries, workers/2*perWorker)
	assert.Len(t, detail.PenaltyEntries, workers/2*perWorker)

	_, total := TallyEvents(detail.ScoreEntries, detail.PenaltyEntries)
	assert.Equal(t, SumRounds(detail.Rounds), total)
	assert.Equal(t, detail.Match.RedTotalScore, total.RedScore)
	assert.Equal(t, detail.Match.BlueTotalScore, total.BlueScore)
	assert.Zero(t, svc.locker.size())
}

func TestKeyedLocker(t *testing.T) {
	l := NewKeyedLocker()
	unlockA := l.Lock(1)
	unlockB := l.Lock(2)
	assert.Equal(t, 2, l.size())

	acquired := make(chan struct{})
	go func() {
		unlock := l.Lock(1)
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock(1) acquired while first is held")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-acquired
	unlockB()
	assert.Eventually(t, func() bool { return l.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEndRound_CurrentRoundAlreadyEnded(t *testing.T) {
	svc, repo, clock := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 3)
	_, err := svc.RecordScore(ctx, m.ID, model.ColorBlue, model.TechniqueHeadKick)
	require.NoError(t, err)

	round, err := repo.GetCurrentRound(ctx, m.ID, 1)
	require.NoError(t, err)
	ended := clock.Now()
	round.EndedAt = &ended
	require.NoError(t, repo.UpdateRound(ctx, round))

	before, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	cmdsBefore, err := repo.ListCommands(ctx, m.ID)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = svc.EndRound(ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	after, err := svc.GetMatchDetail(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, after.Match.CurrentRound)
	assert.Equal(t, model.MatchStatusOngoing, after.Match.Status)
	require.Len(t, after.Rounds, 1)
	assert.Nil(t, after.Rounds[0].WinnerColor)
	assert.Nil(t, after.Rounds[0].DurationSeconds)

	cmdsAfter, err := repo.ListCommands(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, cmdsAfter, len(cmdsBefore))
}

func TestListCommands(t *testing.T) {
	svc, _, _ := newTestService(t, defaultMatchCfg)
	ctx := context.Background()
	m := startedMatch(t, svc, 1)
	_, err := svc.RecordPenalty(ctx, m.ID, model.ColorRed, model.PenaltyFallDown)
	require.NoError(t, err)
	_, err = svc.EndRound(ctx, m.ID)
	require.NoError(t, err)

	cmds, err := svc.ListCommands(ctx, m.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{CommandCreate, CommandStart, CommandRecordPenalty, CommandEndRound}, names)
	assert.JSONEq(t, `{"competitor_color":"red","penalty_type":"fall_down"}`, string(cmds[2].Payload))

	_, err = svc.ListCommands(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
