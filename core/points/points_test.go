package points_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/user"
	inmemdb "github.com/pinhaljunior/aventureiros/storage/database/inmem"
	testutil "github.com/pinhaljunior/aventureiros/tests"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	mem := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(mem)
	childRepo := inmemdb.NewChildRepository(mem)
	logger := new(testutil.Logger)
	children := child.NewService(childRepo, nil, logger, core.NewTestConfig())
	svc := points.NewService(inmemdb.NewPointsRepository(mem), children, inmemdb.NewTransactor(), logger)

	professor := testutil.CreateUser(t, usrRepo, "Dora", "+5511955554321", "", "", user.RoleProfessor, true)
	guardian := testutil.CreateUser(t, usrRepo, "Zeca", "+5511955554322", "", "", user.RoleResponsavel, true)
	lia := testutil.CreateChild(t, childRepo, "Lia", child.ClassLuminares, true)
	bia := testutil.CreateChild(t, childRepo, "Bia", child.ClassLuminares, true)
	teo := testutil.CreateChild(t, childRepo, "Téo", child.ClassEdificadores, true)
	gone := testutil.CreateChild(t, childRepo, "Ana", child.ClassLuminares, false)
	testutil.LinkGuardian(t, childRepo, guardian.ID, lia.ID)

	start := time.Date(2025, time.April, 5, 15, 0, 0, 0, time.UTC)
	tick := 0
	points.NowFunc = func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Minute)
	}
	defer func() { points.NowFunc = time.Now }()

	t.Run("add", func(t *testing.T) {
		e, err := svc.Add(ctx, points.EntryForm{ChildID: lia.ID, Points: 10, Reason: "Uniforme completo"}, professor.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lia", e.ChildName)
		assert.Equal(t, professor.ID, e.CreatedBy)

		_, err = svc.Add(ctx, points.EntryForm{ChildID: 9999, Points: 1}, professor.ID)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("batch", func(t *testing.T) {
		_, err := svc.AddBatch(ctx, points.BatchForm{ClassGroup: child.ClassLuminares, Points: 5, Reason: "Pontualidade"}, professor.ID)
		assert.Equal(t, points.ErrNoChildren, err)

		// Téo is in another class and Ana is inactive
		n, err := svc.AddBatch(ctx, points.BatchForm{
			ClassGroup: child.ClassLuminares,
			ChildIDs:   []int{lia.ID, bia.ID, teo.ID, gone.ID},
			Points:     5,
			Reason:     "Pontualidade",
		}, professor.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = svc.AddBatch(ctx, points.BatchForm{ClassGroup: child.ClassMaos, ChildIDs: []int{lia.ID}, Points: 5, Reason: "x"}, professor.ID)
		assert.Equal(t, points.ErrNoChildren, err)

		_, err = svc.Add(ctx, points.EntryForm{ChildID: teo.ID, Points: -2, Reason: "Conversa"}, professor.ID)
		require.NoError(t, err)
	})

	t.Run("statement", func(t *testing.T) {
		st, err := svc.Statement(ctx, lia.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 15, st.Total)
		require.Len(t, st.Entries, 1)
		assert.Equal(t, "Pontualidade", st.Entries[0].Reason)
		assert.Equal(t, "Dora", st.Entries[0].CreatedByName)

		statements, err := svc.GuardianStatements(ctx, guardian.ID)
		require.NoError(t, err)
		require.Len(t, statements, 1)
		assert.Equal(t, lia.ID, statements[0].Child.ID)
		assert.Len(t, statements[0].Entries, 2)
	})

	t.Run("extract", func(t *testing.T) {
		ex, err := svc.Extract(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, ex.Entries, 4)
		assert.Equal(t, 18, ex.Total)
		assert.Equal(t, []points.ChildTotal{
			{ChildID: lia.ID, ChildName: "Lia", ClassGroup: child.ClassLuminares, Total: 15},
			{ChildID: bia.ID, ChildName: "Bia", ClassGroup: child.ClassLuminares, Total: 5},
			{ChildID: teo.ID, ChildName: "Téo", ClassGroup: child.ClassEdificadores, Total: -2},
		}, ex.Totals)

		ex, err = svc.Extract(ctx, &points.Filter{ClassGroup: " " + child.ClassEdificadores})
		require.NoError(t, err)
		assert.Equal(t, -2, ex.Total)

		ex, err = svc.Extract(ctx, &points.Filter{From: core.NewDate(2025, time.April, 6)})
		require.NoError(t, err)
		assert.Empty(t, ex.Entries)

		total, err := svc.Total(ctx)
		require.NoError(t, err)
		assert.Equal(t, 18, total)

		recent, err := svc.Recent(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Conversa", recent[0].Reason)
	})
}
