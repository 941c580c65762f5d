package roster

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"schoolboard/internal/credentials"
	"schoolboard/internal/feed"
	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

func TestMain(m *testing.M) {
	credentials.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fakeBlobs struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeBlobs) Put(ctx context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "https://cdn.example/" + key, nil
}

func setup(t *testing.T) (*Service, store.Store) {
	s := store.NewMemory()
	return NewService(s, &fakeBlobs{}, nil), s
}

func mustCreate(t *testing.T, svc *Service, name, class string) school.Student {
	t.Helper()
	st, err := svc.Create(context.Background(), school.Student{FullName: name, Class: class}, nil)
	require.NoError(t, err)
	return st
}

// assertDense checks grNo is 1..N overall and rollNo is 1..M per class.
func assertDense(t *testing.T, svc *Service) {
	t.Helper()
	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	for i, st := range all {
		assert.Equal(t, i+1, st.GRNo, "grNo of %s", st.FullName)
	}
	rolls := map[string][]int{}
	for _, st := range all {
		rolls[st.Class] = append(rolls[st.Class], st.RollNo)
	}
	for class, nums := range rolls {
		sort.Ints(nums)
		for i, n := range nums {
			assert.Equal(t, i+1, n, "rollNo sequence of %s", class)
		}
	}
}

func TestCreateAssignsNumbers(t *testing.T) {
	svc, s := setup(t)

	a := mustCreate(t, svc, "Ali Hassan", "Class 1")
	b := mustCreate(t, svc, "Sara Khan", "Class 2")
	c := mustCreate(t, svc, "Bilal Ahmed", "Class 1")

	assert.Equal(t, [2]int{1, 1}, [2]int{a.GRNo, a.RollNo})
	assert.Equal(t, [2]int{2, 1}, [2]int{b.GRNo, b.RollNo})
	assert.Equal(t, [2]int{3, 2}, [2]int{c.GRNo, c.RollNo})
	assert.Empty(t, a.PasswordHash, "hash never leaves the service")

	doc, err := s.Get(context.Background(), school.Students, b.ID)
	require.NoError(t, err)
	var stored school.Student
	require.NoError(t, doc.Decode(&stored))
	assert.True(t, credentials.Check(stored.PasswordHash, "Sara@123"))

	next, err := svc.NextGRNo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestCreateValidation(t *testing.T) {
	svc, s := setup(t)
	tests := []struct {
		name string
		in   school.Student
	}{
		{name: "class unset", in: school.Student{FullName: "Ali"}},
		{name: "unknown class", in: school.Student{FullName: "Ali", Class: "Class 11"}},
		{name: "blank name", in: school.Student{FullName: "  ", Class: "Class 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in, nil)
			require.Error(t, err)
			assert.True(t, school.IsValidation(err))
		})
	}
	docs, err := s.List(context.Background(), school.Students)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCreateUploadsPhoto(t *testing.T) {
	s := store.NewMemory()
	blobs := &fakeBlobs{}
	svc := NewService(s, blobs, nil)
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	st, err := svc.Create(context.Background(), school.Student{FullName: "Ali", Class: "Class 3"},
		&Photo{Filename: "ali.png", Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, []string{"students/1700000000123_ali.png"}, blobs.keys)
	assert.Equal(t, "https://cdn.example/students/1700000000123_ali.png", st.Photo)

	noBlobs := NewService(store.NewMemory(), nil, nil)
	_, err = noBlobs.Create(context.Background(), school.Student{FullName: "Ali", Class: "Class 3"},
		&Photo{Filename: "ali.png", Data: []byte("img")})
	assert.ErrorIs(t, err, ErrNoPhotoStore)
}

func TestDeleteThenRenumber(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	s1 := mustCreate(t, svc, "One", "Class 1")
	s2 := mustCreate(t, svc, "Two", "Class 2")
	s3 := mustCreate(t, svc, "Three", "Class 2")
	s4 := mustCreate(t, svc, "Four", "Class 1")
	require.Equal(t, 1, s2.RollNo)
	require.Equal(t, 2, s3.RollNo)

	require.NoError(t, svc.Delete(ctx, s2.ID))

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{s1.ID, s3.ID, s4.ID}, ids(all))
	assert.Equal(t, []int{1, 2, 3}, grNos(all))

	got, err := svc.Get(ctx, s3.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RollNo, "next student in the deleted student's class moves up")
	got, err = svc.Get(ctx, s4.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RollNo, "other classes keep their roll numbers")
}

func TestDeleteEdges(t *testing.T) {
	ctx := context.Background()

	t.Run("highest grNo needs no reassignment", func(t *testing.T) {
		svc, _ := setup(t)
		a := mustCreate(t, svc, "A", "Class 1")
		b := mustCreate(t, svc, "B", "Class 1")
		c := mustCreate(t, svc, "C", "Class 1")
		require.NoError(t, svc.Delete(ctx, c.ID))
		all, err := svc.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID, b.ID}, ids(all))
		assert.Equal(t, []int{1, 2}, grNos(all))
		assert.Empty(t, mustCheck(t, svc))
	})

	t.Run("lowest grNo shifts everyone down", func(t *testing.T) {
		svc, _ := setup(t)
		a := mustCreate(t, svc, "A", "Class 1")
		b := mustCreate(t, svc, "B", "Class 2")
		c := mustCreate(t, svc, "C", "Class 1")
		d := mustCreate(t, svc, "D", "Class 3")
		require.NoError(t, svc.Delete(ctx, a.ID))
		all, err := svc.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID, c.ID, d.ID}, ids(all))
		assert.Equal(t, []int{1, 2, 3}, grNos(all))
		got, err := svc.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.RollNo)
	})

	t.Run("missing student", func(t *testing.T) {
		svc, _ := setup(t)
		err := svc.Delete(ctx, "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDenseNumberingInvariant(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	classes := school.Classes[:4]

	var live []string
	for step := 0; step < 120; step++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			st := mustCreate(t, svc, "Student", classes[rng.Intn(len(classes))])
			live = append(live, st.ID)
			continue
		}
		i := rng.Intn(len(live))
		require.NoError(t, svc.Delete(ctx, live[i]))
		live = append(live[:i], live[i+1:]...)
		assertDense(t, svc)
	}
	assertDense(t, svc)
}

func TestConcurrentDeletesStayDense(t *testing.T) {
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	s, err := store.NewSQLStore(context.Background(), db, store.SQLite)
	require.NoError(t, err)
	defer s.Close()

	svc := NewService(s, nil, nil)
	var victims []string
	for i := 0; i < 12; i++ {
		st := mustCreate(t, svc, "Student", school.Classes[i%3])
		if i%2 == 0 {
			victims = append(victims, st.ID)
		}
	}

	var wg sync.WaitGroup
	for _, id := range victims {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, svc.Delete(context.Background(), id))
		}(id)
	}
	wg.Wait()

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assertDense(t, svc)
}

func TestListOrdering(t *testing.T) {
	svc, s := setup(t)
	ctx := context.Background()

	// seed out of order to prove List sorts rather than relying on insertion order
	for _, st := range []school.Student{
		{FullName: "C", Class: "Class 1", GRNo: 3, RollNo: 2},
		{FullName: "A", Class: "Class 1", GRNo: 1, RollNo: 1},
		{FullName: "B", Class: "Class 2", GRNo: 2, RollNo: 1},
	} {
		_, err := s.Create(ctx, school.Students, "", st)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, grNos(all))

	class1, err := svc.List(ctx, "Class 1")
	require.NoError(t, err)
	require.Len(t, class1, 2)
	assert.Equal(t, "A", class1[0].FullName)
	assert.Equal(t, "C", class1[1].FullName)
}

func TestUpdate(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "A", "Class 1")
	b := mustCreate(t, svc, "B", "Class 1")
	c := mustCreate(t, svc, "C", "Class 2")

	t.Run("numbering untouched", func(t *testing.T) {
		in := b
		in.FullName = "B Renamed"
		in.GRNo, in.RollNo = 99, 99
		got, err := svc.Update(ctx, b.ID, in, nil)
		require.NoError(t, err)
		assert.Equal(t, "B Renamed", got.FullName)
		assert.Equal(t, 2, got.GRNo)
		assert.Equal(t, 2, got.RollNo)
	})

	t.Run("class change appends and compacts", func(t *testing.T) {
		in := a
		in.Class = "Class 2"
		got, err := svc.Update(ctx, a.ID, in, nil)
		require.NoError(t, err)
		assert.Equal(t, "Class 2", got.Class)
		assert.Equal(t, 2, got.RollNo)
		assert.Equal(t, 1, got.GRNo)

		moved, err := svc.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, moved.RollNo)
		kept, err := svc.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, kept.RollNo)
		assertDense(t, svc)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.Update(ctx, "nobody", school.Student{FullName: "X", Class: "Class 1"}, nil)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCheckAndRepair(t *testing.T) {
	svc, s := setup(t)
	ctx := context.Background()
	for _, st := range []school.Student{
		{FullName: "A", Class: "Class 1", GRNo: 2, RollNo: 3},
		{FullName: "B", Class: "Class 1", GRNo: 5, RollNo: 7},
	} {
		_, err := s.Create(ctx, school.Students, "", st)
		require.NoError(t, err)
	}

	gaps := mustCheck(t, svc)
	assert.Len(t, gaps, 2)

	n, err := svc.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, mustCheck(t, svc))
	assertDense(t, svc)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := feed.NewInMemory()
	s := store.WithFeed(store.NewMemory(), broker)
	svc := NewService(s, nil, broker)

	snaps, err := svc.Watch(ctx, "Class 1")
	require.NoError(t, err)

	first := <-snaps
	assert.Empty(t, first)

	mustCreate(t, svc, "Ali", "Class 1")
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if len(snap) == 1 {
				assert.Equal(t, "Ali", snap[0].FullName)
				return
			}
		case <-deadline:
			t.Fatal("no snapshot after create")
		}
	}
}

func TestRenumber(t *testing.T) {
	in := []school.Student{
		{ID: "a", Class: "Class 1", GRNo: 1, RollNo: 1},
		{ID: "c", Class: "Class 1", GRNo: 3, RollNo: 3},
		{ID: "d", Class: "Class 2", GRNo: 4, RollNo: 1},
	}
	changed := Renumber(in)
	got := map[string][2]int{}
	for _, st := range changed {
		got[st.ID] = [2]int{st.GRNo, st.RollNo}
	}
	assert.Equal(t, map[string][2]int{"c": {2, 2}, "d": {3, 1}}, got)
	assert.Equal(t, 3, in[1].GRNo, "input is not modified")
	assert.Empty(t, Renumber(nil))
}

func mustCheck(t *testing.T, svc *Service) []school.Student {
	t.Helper()
	gaps, err := svc.Check(context.Background())
	require.NoError(t, err)
	return gaps
}

func ids(sts []school.Student) []string {
	out := make([]string, len(sts))
	for i, s := range sts {
		out[i] = s.ID
	}
	return out
}

func grNos(sts []school.Student) []int {
	out := make([]int, len(sts))
	for i, s := range sts {
		out[i] = s.GRNo
	}
	return out
}
