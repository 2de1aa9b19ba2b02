package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/child"
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
	svc := attendance.NewService(inmemdb.NewAttendanceRepository(mem), children, inmemdb.NewTransactor(), logger)

	professor := testutil.CreateUser(t, usrRepo, "Dora", "+5511955554321", "", "", user.RoleProfessor, true)
	guardian := testutil.CreateUser(t, usrRepo, "Zeca", "+5511955554322", "", "", user.RoleResponsavel, true)
	lia := testutil.CreateChild(t, childRepo, "Lia", child.ClassLuminares, true)
	bia := testutil.CreateChild(t, childRepo, "Bia", child.ClassLuminares, true)
	teo := testutil.CreateChild(t, childRepo, "Téo", child.ClassEdificadores, true)
	testutil.CreateChild(t, childRepo, "Ana", child.ClassLuminares, false)
	testutil.LinkGuardian(t, childRepo, guardian.ID, lia.ID)

	meeting, err := svc.CreateSession(ctx, attendance.SessionForm{
		Date: core.NewDate(2025, time.April, 5), Type: attendance.TypeReuniao, ClassGroup: child.ClassLuminares,
	}, professor.ID)
	require.NoError(t, err)
	event, err := svc.CreateSession(ctx, attendance.SessionForm{
		Date: core.NewDate(2025, time.April, 12), Type: attendance.TypeEvento,
	}, professor.ID)
	require.NoError(t, err)

	t.Run("sessions", func(t *testing.T) {
		sessions, err := svc.Sessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, event.ID, sessions[0].ID)

		_, err = svc.Sheet(ctx, 9999)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("class sheet", func(t *testing.T) {
		sheet, err := svc.Sheet(ctx, meeting.ID)
		require.NoError(t, err)
		require.Len(t, sheet.Entries, 2)
		for _, e := range sheet.Entries {
			assert.False(t, e.Marked)
		}

		n, err := svc.Mark(ctx, meeting.ID, []attendance.Mark{
			{ChildID: lia.ID, Present: true, Note: "  chegou cedo "},
			{ChildID: teo.ID, Present: true},
		}, professor.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		sheet, err = svc.Sheet(ctx, meeting.ID)
		require.NoError(t, err)
		got := make(map[int]attendance.SheetEntry)
		for _, e := range sheet.Entries {
			got[e.Child.ID] = e
		}
		assert.True(t, got[lia.ID].Marked)
		assert.True(t, got[lia.ID].Present)
		assert.Equal(t, "chegou cedo", got[lia.ID].Note)
		assert.True(t, got[bia.ID].Marked)
		assert.False(t, got[bia.ID].Present)
		assert.NotContains(t, got, teo.ID)
	})

	t.Run("marking again updates", func(t *testing.T) {
		_, err := svc.Mark(ctx, meeting.ID, []attendance.Mark{{ChildID: bia.ID, Present: true}}, professor.ID)
		require.NoError(t, err)

		records, err := svc.ChildRecords(ctx, bia.ID, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].Present)
	})

	t.Run("event sheet holds every class", func(t *testing.T) {
		n, err := svc.Mark(ctx, event.ID, nil, professor.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		records, err := svc.GuardianRecords(ctx, guardian.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, core.NewDate(2025, time.April, 12), records[0].SessionDate)
		assert.False(t, records[0].Present)

		sessions, marks, err := svc.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, sessions)
		assert.Equal(t, 5, marks)
	})
}
