package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/pribylovaa/go-todo-service/internal/cache"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/storage"
	"github.com/stretchr/testify/require"
)

func mustTodo(owner uuid.UUID, task string) *models.Todo {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Todo{
		ID:        "65e0a0c9fd2f000000000001",
		Task:      task,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// seedCache кладёт в кэш заведомо устаревший снимок.
func seedCache(t *testing.T, env *testEnv, owner uuid.UUID) {
	t.Helper()

	require.NoError(t, env.mr.Set(cache.TodosKey(owner), `[{"id":"stale","task":"stale"}]`))
}

func TestListTodos_MissThenHit(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	ctx := context.Background()

	want := []models.Todo{*mustTodo(owner, "milk")}
	env.st.EXPECT().ListTodos(gomock.Any(), owner).Return(want, nil).Times(1)

	got, err := env.svc.ListTodos(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.True(t, env.mr.Exists(cache.TodosKey(owner)))
	require.Equal(t, time.Hour, env.mr.TTL(cache.TodosKey(owner)))

	// Второе чтение обслуживается из кэша: ListTodos хранилища больше не вызывается.
	got, err = env.svc.ListTodos(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestListTodos_EmptyListIsCachedToo(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	ctx := context.Background()

	env.st.EXPECT().ListTodos(gomock.Any(), owner).Return([]models.Todo{}, nil).Times(1)

	for i := 0; i < 2; i++ {
		got, err := env.svc.ListTodos(ctx, owner)
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

func TestListTodos_CorruptCache_FallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	require.NoError(t, env.mr.Set(cache.TodosKey(owner), "{broken"))
	want := []models.Todo{*mustTodo(owner, "milk")}
	env.st.EXPECT().ListTodos(gomock.Any(), owner).Return(want, nil)

	got, err := env.svc.ListTodos(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Битая запись перезаписана свежим снимком.
	raw, err := env.mr.Get(cache.TodosKey(owner))
	require.NoError(t, err)
	require.Contains(t, raw, `"task":"milk"`)
}

func TestListTodos_RedisDown_ServesFromStore(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	env.mr.Close()
	want := []models.Todo{*mustTodo(owner, "milk")}
	env.st.EXPECT().ListTodos(gomock.Any(), owner).Return(want, nil)

	got, err := env.svc.ListTodos(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestListTodos_ConcurrentWriteDoesNotLeaveStaleSnapshot(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	ctx := context.Background()

	stale := []models.Todo{*mustTodo(owner, "milk")}

	// Хранилище отдаёт список, а пока ответ в пути, другой запрос удаляет все задачи.
	env.st.EXPECT().DeleteAllTodos(gomock.Any(), owner).Return(int64(1), nil)
	env.st.EXPECT().ListTodos(gomock.Any(), owner).DoAndReturn(
		func(ctx context.Context, _ uuid.UUID) ([]models.Todo, error) {
			_, err := env.svc.DeleteAllTodos(ctx, owner)
			require.NoError(t, err)
			return stale, nil
		})

	got, err := env.svc.ListTodos(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, stale, got)
	require.False(t, env.mr.Exists(cache.TodosKey(owner)), "stale list must not be cached")

	// Следующее чтение идёт в хранилище и кэширует актуальный список.
	env.st.EXPECT().ListTodos(gomock.Any(), owner).Return([]models.Todo{}, nil)

	got, err = env.svc.ListTodos(ctx, owner)
	require.NoError(t, err)
	require.Empty(t, got)
	require.True(t, env.mr.Exists(cache.TodosKey(owner)))
}

func TestListTodos_StoreError(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	env.st.EXPECT().ListTodos(gomock.Any(), owner).Return(nil, errors.New("db down"))

	_, err := env.svc.ListTodos(context.Background(), owner)
	require.ErrorIs(t, err, ErrInternal)
	require.False(t, env.mr.Exists(cache.TodosKey(owner)))
}

func TestTodoByID_BypassesCache(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	seedCache(t, env, owner)

	want := mustTodo(owner, "milk")
	env.st.EXPECT().TodoByID(gomock.Any(), owner, want.ID).Return(want, nil)

	got, err := env.svc.TodoByID(context.Background(), owner, " "+want.ID+" ")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.True(t, env.mr.Exists(cache.TodosKey(owner)))
}

func TestTodoByID_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	ctx := context.Background()

	_, err := env.svc.TodoByID(ctx, owner, "  ")
	requireFields(t, err, "id")

	env.st.EXPECT().TodoByID(gomock.Any(), owner, "missing").Return(nil, fmtWrap(storage.ErrNotFound))
	_, err = env.svc.TodoByID(ctx, owner, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	env.st.EXPECT().TodoByID(gomock.Any(), owner, "zzz").Return(nil, fmtWrap(storage.ErrInvalidID))
	_, err = env.svc.TodoByID(ctx, owner, "zzz")
	requireFields(t, err, "id")

	env.st.EXPECT().TodoByID(gomock.Any(), owner, "slow").Return(nil, context.DeadlineExceeded)
	_, err = env.svc.TodoByID(ctx, owner, "slow")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateTodo_InvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	seedCache(t, env, owner)

	created := mustTodo(owner, "milk")
	env.st.EXPECT().
		CreateTodo(gomock.Any(), models.Todo{Task: "milk", OwnerID: owner}).
		Return(created, nil)

	got, err := env.svc.CreateTodo(context.Background(), owner, "  milk ")
	require.NoError(t, err)
	require.Equal(t, created, got)
	require.False(t, env.mr.Exists(cache.TodosKey(owner)))
}

func TestCreateTodo_EmptyTask_NoStoreCall_CacheKept(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	seedCache(t, env, owner)

	_, err := env.svc.CreateTodo(context.Background(), owner, "   ")
	requireFields(t, err, "task")
	require.True(t, env.mr.Exists(cache.TodosKey(owner)))
}

func TestMutations_InvalidateEvenOnStoreError(t *testing.T) {
	owner := uuid.New()
	task := "x"

	tests := map[string]struct {
		expect func(env *testEnv)
		call   func(env *testEnv) error
		want   error
	}{
		"create": {
			expect: func(env *testEnv) {
				env.st.EXPECT().CreateTodo(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
			},
			call: func(env *testEnv) error {
				_, err := env.svc.CreateTodo(context.Background(), owner, "milk")
				return err
			},
			want: ErrInternal,
		},
		"update not found": {
			expect: func(env *testEnv) {
				env.st.EXPECT().UpdateTodo(gomock.Any(), owner, "id1", gomock.Any()).Return(nil, fmtWrap(storage.ErrNotFound))
			},
			call: func(env *testEnv) error {
				_, err := env.svc.UpdateTodo(context.Background(), owner, "id1", models.TodoPatch{Task: &task})
				return err
			},
			want: ErrNotFound,
		},
		"toggle not found": {
			expect: func(env *testEnv) {
				env.st.EXPECT().ToggleTodo(gomock.Any(), owner, "id1").Return(nil, fmtWrap(storage.ErrNotFound))
			},
			call: func(env *testEnv) error {
				_, err := env.svc.ToggleTodo(context.Background(), owner, "id1", nil)
				return err
			},
			want: ErrNotFound,
		},
		"delete invalid id": {
			expect: func(env *testEnv) {
				env.st.EXPECT().DeleteTodo(gomock.Any(), owner, "bad").Return(fmtWrap(storage.ErrInvalidID))
			},
			call: func(env *testEnv) error {
				return env.svc.DeleteTodo(context.Background(), owner, "bad")
			},
			want: ErrInvalidArgument,
		},
		"delete all timeout": {
			expect: func(env *testEnv) {
				env.st.EXPECT().DeleteAllTodos(gomock.Any(), owner).Return(int64(0), context.DeadlineExceeded)
			},
			call: func(env *testEnv) error {
				_, err := env.svc.DeleteAllTodos(context.Background(), owner)
				return err
			},
			want: ErrUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			seedCache(t, env, owner)
			tt.expect(env)

			err := tt.call(env)
			require.ErrorIs(t, err, tt.want)
			require.False(t, env.mr.Exists(cache.TodosKey(owner)))
		})
	}
}

func TestMutations_InvalidateAfterCancelledRequest(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	seedCache(t, env, owner)

	ctx, cancel := context.WithCancel(context.Background())
	env.st.EXPECT().
		DeleteTodo(gomock.Any(), owner, "id1").
		DoAndReturn(func(context.Context, uuid.UUID, string) error {
			cancel()
			return context.Canceled
		})

	err := env.svc.DeleteTodo(ctx, owner, "id1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, env.mr.Exists(cache.TodosKey(owner)))
}

func TestUpdateTodo(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	ctx := context.Background()

	blank := "  "
	_, err := env.svc.UpdateTodo(ctx, owner, "id1", models.TodoPatch{Task: &blank})
	requireFields(t, err, "task")

	task := " bread "
	done := true
	updated := mustTodo(owner, "bread")
	updated.Completed = true

	env.st.EXPECT().
		UpdateTodo(gomock.Any(), owner, "id1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ string, p models.TodoPatch) (*models.Todo, error) {
			require.Equal(t, "bread", *p.Task)
			require.True(t, *p.Completed)
			return updated, nil
		})

	got, err := env.svc.UpdateTodo(ctx, owner, "id1", models.TodoPatch{Task: &task, Completed: &done})
	require.NoError(t, err)
	require.Equal(t, updated, got)
}

func TestToggleTodo_ExplicitAndFlip(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	ctx := context.Background()

	done := false
	explicit := mustTodo(owner, "milk")
	env.st.EXPECT().
		UpdateTodo(gomock.Any(), owner, "id1", models.TodoPatch{Completed: &done}).
		Return(explicit, nil)

	got, err := env.svc.ToggleTodo(ctx, owner, "id1", &done)
	require.NoError(t, err)
	require.False(t, got.Completed)

	flipped := mustTodo(owner, "milk")
	flipped.Completed = true
	env.st.EXPECT().ToggleTodo(gomock.Any(), owner, "id1").Return(flipped, nil)

	got, err = env.svc.ToggleTodo(ctx, owner, "id1", nil)
	require.NoError(t, err)
	require.True(t, got.Completed)
}

func TestDeleteAllTodos_ReturnsCount(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	seedCache(t, env, owner)

	env.st.EXPECT().DeleteAllTodos(gomock.Any(), owner).Return(int64(3), nil)

	n, err := env.svc.DeleteAllTodos(context.Background(), owner)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.False(t, env.mr.Exists(cache.TodosKey(owner)))
}

func TestInvalidate_RedisDown_MutationStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	env.mr.Close()
	env.st.EXPECT().DeleteTodo(gomock.Any(), owner, "id1").Return(nil)

	require.NoError(t, env.svc.DeleteTodo(context.Background(), owner, "id1"))
}
