package branding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	gets     int
	err      error
}

func newMemStore(profiles ...Profile) *memStore {
	s := &memStore{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		s.profiles[p.OrgType] = p
	}
	return s
}

func (s *memStore) Get(_ context.Context, orgType string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return Profile{}, s.err
	}
	p, ok := s.profiles[orgType]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *memStore) Upsert(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.OrgType] = p
	return nil
}

func (s *memStore) Delete(_ context.Context, orgType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[orgType]; !ok {
		return ErrNotFound
	}
	delete(s.profiles, orgType)
	return nil
}

var greenProfile = Profile{
	OrgType:         "environmental_ngo",
	PrincipalColors: []string{"#57B45F", "#FFDC2E"},
	VisualStyle: VisualStyle{
		ImageStyle: "lifestyle photography",
		Mood:       "optimistic",
		Techniques: []string{"natural light", " ", "shallow depth of field"},
	},
	NegativeTerms: []string{"smog"},
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		configured string
		store      bool
		want       Mode
	}{
		{"auto", true, ModeFull},
		{"auto", false, ModeSimple},
		{"", true, ModeFull},
		{"full", false, ModeSimple},
		{"FULL", true, ModeFull},
		{"simple", true, ModeSimple},
		{"none", true, ModeNone},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s/%v", tc.configured, tc.store), func(t *testing.T) {
			require.Equal(t, tc.want, ResolveMode(tc.configured, tc.store))
		})
	}
}

func TestNewStrategy(t *testing.T) {
	_, err := NewStrategy(ModeFull, nil)
	require.Error(t, err)
	_, err = NewStrategy("weird", nil)
	require.Error(t, err)

	for _, mode := range []Mode{ModeFull, ModeSimple, ModeNone} {
		s, err := NewStrategy(mode, newMemStore())
		require.NoError(t, err)
		require.Equal(t, mode, s.Mode())
	}
}

func TestFullStrategy(t *testing.T) {
	ctx := context.Background()
	s, err := NewStrategy(ModeFull, newMemStore(greenProfile))
	require.NoError(t, err)

	res, err := s.Apply(ctx, "environmental_ngo", "volunteers planting trees")
	require.NoError(t, err)
	require.Equal(t, "volunteers planting trees, lifestyle photography, optimistic mood, natural light, shallow depth of field", res.Prompt)
	require.Equal(t, []string{"#57B45F", "#FFDC2E"}, res.SuggestedColors)
	require.Equal(t, "smog, "+textNegative, res.NegativePrompt)
	require.Equal(t, ModeFull, res.Strategy)

	res, err = s.Apply(ctx, "ngo", "volunteers planting trees")
	require.NoError(t, err)
	require.Equal(t, "volunteers planting trees", res.Prompt)
	require.Empty(t, res.Elements)
}

func TestFullStrategyStoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	s := FullStrategy{store: store}

	res, err := s.Apply(context.Background(), "ngo", "a park")
	require.Error(t, err)
	require.Equal(t, "a park", res.Prompt)
}

func TestSimpleStrategy(t *testing.T) {
	ctx := context.Background()
	res, err := SimpleStrategy{}.Apply(ctx, "ngo", "a group of people at a market")
	require.NoError(t, err)
	require.Equal(t, "a group of people at a market, documentary photography style, natural colors, warm and welcoming, diverse group of people, optimistic expressions, community and collaboration", res.Prompt)
	require.Equal(t, textNegative, res.NegativePrompt)

	res, err = SimpleStrategy{}.Apply(ctx, "ngo", "watercolor poster of a river")
	require.NoError(t, err)
	require.Equal(t, "watercolor poster of a river", res.Prompt)
}

func TestNoneStrategy(t *testing.T) {
	res, err := NoneStrategy{}.Apply(context.Background(), "ngo", " as is ")
	require.NoError(t, err)
	require.Equal(t, " as is ", res.Prompt)
	require.Empty(t, res.NegativePrompt)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("ngo", []byte(`{"organizationName":"Green","visualStyle":{"imageStyle":"documentary"}}`))
	require.NoError(t, err)
	require.Equal(t, "ngo", p.OrgType)
	require.Equal(t, "Green", p.OrganizationName)

	_, err = ParseProfile("ngo", []byte(`{"organizationName":"Empty"}`))
	require.Error(t, err)
	_, err = ParseProfile("ngo", []byte(`{`))
	require.Error(t, err)
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	cache.Set(ctx, greenProfile)
	_, ok := cache.Get(ctx, greenProfile.OrgType)
	require.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = cache.Get(ctx, greenProfile.OrgType)
	require.False(t, ok)

	cache.Set(ctx, greenProfile)
	cache.Invalidate(ctx, greenProfile.OrgType)
	_, ok = cache.Get(ctx, greenProfile.OrgType)
	require.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	_, ok := cache.Get(ctx, "environmental_ngo")
	require.False(t, ok)

	cache.Set(ctx, greenProfile)
	got, ok := cache.Get(ctx, "environmental_ngo")
	require.True(t, ok)
	require.Equal(t, greenProfile.VisualStyle, got.VisualStyle)
	require.Equal(t, time.Minute, mr.TTL("branding:environmental_ngo"))

	mr.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, "environmental_ngo")
	require.False(t, ok)

	cache.Set(ctx, greenProfile)
	cache.Invalidate(ctx, "environmental_ngo")
	require.False(t, mr.Exists("branding:environmental_ngo"))
}

func TestCachedStoreReadsThroughAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(greenProfile)
	cached := NewCachedStore(store, NewMemoryCache(time.Hour, nil))

	for i := 0; i < 3; i++ {
		_, err := cached.Get(ctx, "environmental_ngo")
		require.NoError(t, err)
	}
	require.Equal(t, 1, store.gets)

	updated := greenProfile
	updated.VisualStyle.Mood = "hopeful"
	require.NoError(t, cached.Upsert(ctx, updated))
	got, err := cached.Get(ctx, "environmental_ngo")
	require.NoError(t, err)
	require.Equal(t, "hopeful", got.VisualStyle.Mood)
	require.Equal(t, 2, store.gets)

	require.NoError(t, cached.Delete(ctx, "environmental_ngo"))
	_, err = cached.Get(ctx, "environmental_ngo")
	require.ErrorIs(t, err, ErrNotFound)
}

type fakeRow struct {
	doc       []byte
	updatedAt time.Time
	err       error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.doc
	*dest[1].(*time.Time) = r.updatedAt
	return nil
}

type fakeDB struct {
	rows map[string]fakeRow
	sql  []string
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.sql = append(db.sql, sql)
	org := args[0].(string)
	if strings.HasPrefix(sql, "DELETE") {
		if _, ok := db.rows[org]; !ok {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(db.rows, org)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	db.rows[org] = fakeRow{doc: args[1].([]byte), updatedAt: args[2].(time.Time)}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.sql = append(db.sql, sql)
	row, ok := db.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{rows: make(map[string]fakeRow)}
	fixed := time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)
	store := NewPostgresStore(db)
	store.now = func() time.Time { return fixed }

	_, err := store.Get(ctx, "environmental_ngo")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Upsert(ctx, greenProfile))
	got, err := store.Get(ctx, "environmental_ngo")
	require.NoError(t, err)
	require.Equal(t, fixed, got.UpdatedAt)
	require.Equal(t, greenProfile.PrincipalColors, got.PrincipalColors)

	require.Error(t, store.Upsert(ctx, Profile{OrgType: "ngo"}))

	require.NoError(t, store.Delete(ctx, "environmental_ngo"))
	require.ErrorIs(t, store.Delete(ctx, "environmental_ngo"), ErrNotFound)
	require.True(t, strings.HasPrefix(db.sql[1], "INSERT INTO branding_profiles"))
}
