package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/floralog/floralog"
	"github.com/floralog/floralog/internal/domain"
)

type mockObservationRepo struct {
	created       []floralog.Record
	annotated     []floralog.Annotation
	verified      []floralog.VerificationEntry
	hidden        []uint64
	statsCalls    int
	statsResponse [12]uint64
}

func (m *mockObservationRepo) Create(ctx context.Context, rec floralog.Record) (uint64, error) {
	m.created = append(m.created, rec)
	return uint64(len(m.created)), nil
}

func (m *mockObservationRepo) Get(ctx context.Context, id uint64) (*floralog.Record, error) {
	return nil, nil
}

func (m *mockObservationRepo) Annotate(ctx context.Context, id uint64, a floralog.Annotation) error {
	m.annotated = append(m.annotated, a)
	return nil
}

func (m *mockObservationRepo) AddVerification(ctx context.Context, id uint64, v floralog.VerificationEntry) error {
	m.verified = append(m.verified, v)
	return nil
}

func (m *mockObservationRepo) Hide(ctx context.Context, id uint64, reason *string) error {
	m.hidden = append(m.hidden, id)
	return nil
}

func (m *mockObservationRepo) List(ctx context.Context, q floralog.ListQuery) (floralog.Page, error) {
	return floralog.Page{Records: []floralog.Record{}}, nil
}

func (m *mockObservationRepo) Count(ctx context.Context, f floralog.Filter) (uint64, error) {
	return 0, nil
}

func (m *mockObservationRepo) StatsMonthly(ctx context.Context, f floralog.Filter, year uint32) ([12]uint64, error) {
	m.statsCalls++
	return m.statsResponse, nil
}

type mockRoleRepo struct {
	admin     string
	verifiers map[string]bool
	toggled   map[string]bool
}

func (m *mockRoleRepo) IsAdmin(ctx context.Context, principal string) (bool, error) {
	return principal != "" && principal == m.admin, nil
}

func (m *mockRoleRepo) IsVerifier(ctx context.Context, principal string) (bool, error) {
	return m.verifiers[principal], nil
}

func (m *mockRoleRepo) SetVerifier(ctx context.Context, principal string, enabled bool) error {
	if m.toggled == nil {
		m.toggled = map[string]bool{}
	}
	m.toggled[principal] = enabled
	return nil
}

type mockPublisher struct {
	events []floralog.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event floralog.Event) error {
	m.events = append(m.events, event)
	return nil
}

const validCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func newTestUsecase() (*ObservationUsecase, *mockObservationRepo, *mockRoleRepo, *mockPublisher) {
	repo := &mockObservationRepo{}
	roles := &mockRoleRepo{admin: "flora1admin", verifiers: map[string]bool{"flora1verifier": true}}
	pub := &mockPublisher{}
	uc := NewObservationUsecase(repo, roles, pub)
	uc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return uc, repo, roles, pub
}

func TestStoreExtractsIndexValues(t *testing.T) {
	uc, repo, _, pub := newTestUsecase()

	id, err := uc.Store(context.Background(), StoreInput{
		Submitter: "flora1submitter",
		CID:       "ipfs://" + validCID,
		Payload: floralog.Payload{
			"observed_at": float64(1700000000),
			"species":     "  Quercus ALBA ",
			"place":       map[string]any{"lat": 52.5, "lon": 13.4},
		},
	})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1 got %d", id)
	}

	rec := repo.created[0]
	if rec.ObservedAt != 1700000000 {
		t.Fatalf("observed_at not extracted: %d", rec.ObservedAt)
	}
	if rec.Species == nil || *rec.Species != "quercus alba" {
		t.Fatalf("species not normalized: %v", rec.Species)
	}
	if len(rec.Geocode) != 6 {
		t.Fatalf("geocode not derived: %q", rec.Geocode)
	}
	if rec.CID != validCID {
		t.Fatalf("scheme not stripped: %q", rec.CID)
	}

	if len(pub.events) != 1 || pub.events[0].Type != floralog.EventObservationStored || pub.events[0].ID != 1 {
		t.Fatalf("event not published: %+v", pub.events)
	}
}

func TestStoreRequiresObservedAt(t *testing.T) {
	uc, _, _, _ := newTestUsecase()

	cases := []floralog.Payload{
		{},
		{"observed_at": "yesterday"},
		{"observed_at": float64(-5)},
		{"observed_at": 1.5},
	}
	for _, payload := range cases {
		_, err := uc.Store(context.Background(), StoreInput{CID: validCID, Payload: payload})
		if !errors.Is(err, domain.ErrBadRequest) {
			t.Fatalf("payload %v: expected BadRequest, got %v", payload, err)
		}
	}
}

func TestStoreValidatesCID(t *testing.T) {
	uc, _, _, _ := newTestUsecase()
	payload := floralog.Payload{"observed_at": float64(1)}

	cases := []string{
		"",
		"   ",
		"short",
		string(make([]byte, 201)),
		"bafybeigdyrzt5sfp7 udm7hu76uh7y26",
	}
	for _, cid := range cases {
		_, err := uc.Store(context.Background(), StoreInput{CID: cid, Payload: payload})
		if !errors.Is(err, domain.ErrBadRequest) {
			t.Fatalf("cid %q: expected BadRequest, got %v", cid, err)
		}
	}
}

func TestStoreWithoutSpeciesOrPlace(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()

	_, err := uc.Store(context.Background(), StoreInput{
		CID:     validCID,
		Payload: floralog.Payload{"observed_at": float64(42)},
	})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	rec := repo.created[0]
	if rec.Species != nil || rec.Geocode != "" {
		t.Fatalf("expected bare record, got species=%v geocode=%q", rec.Species, rec.Geocode)
	}
}

func TestAnnotateRequiresContent(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	ctx := context.Background()
	empty := ""
	noTags := []string{}

	cases := []AnnotateInput{
		{},
		{Note: &empty},
		{PhotoCID: &empty},
		{Tags: &noTags},
		{PhotoCID: &empty, Tags: &noTags},
	}
	for i, input := range cases {
		if err := uc.Annotate(ctx, 1, input); !errors.Is(err, domain.ErrBadRequest) {
			t.Fatalf("case %d: expected BadRequest, got %v", i, err)
		}
	}
	if len(repo.annotated) != 0 {
		t.Fatalf("repo touched on invalid input")
	}

	note := "leaves turning"
	if err := uc.Annotate(ctx, 1, AnnotateInput{Requester: "flora1x", Note: &note}); err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	if len(repo.annotated) != 1 || repo.annotated[0].By != "flora1x" || repo.annotated[0].At != 1700000000 {
		t.Fatalf("annotation not stamped: %+v", repo.annotated)
	}

	// A non-empty note is content as-is; no trimming is applied.
	spaced := " seen at dusk "
	if err := uc.Annotate(ctx, 1, AnnotateInput{Requester: "flora1x", Note: &spaced}); err != nil {
		t.Fatalf("annotate with padded note failed: %v", err)
	}
	photo := "bafyphoto"
	if err := uc.Annotate(ctx, 1, AnnotateInput{Requester: "flora1x", PhotoCID: &photo}); err != nil {
		t.Fatalf("annotate with photo failed: %v", err)
	}
}

func TestVerifyChecksRoleBeforeInput(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	ctx := context.Background()

	// Role failure wins even when the taxon is also invalid.
	err := uc.Verify(ctx, 1, VerifyInput{Requester: "flora1nobody", TaxonID: ""})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}

	err = uc.Verify(ctx, 1, VerifyInput{Requester: "flora1verifier", TaxonID: "  "})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}

	err = uc.Verify(ctx, 1, VerifyInput{Requester: "flora1verifier", TaxonID: " urn:lsid:42 ", Confidence: 250})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	v := repo.verified[0]
	if v.TaxonID != "urn:lsid:42" || v.Verifier != "flora1verifier" || v.Confidence != 250 {
		t.Fatalf("verification not stamped: %+v", v)
	}
}

func TestHideRequiresAdmin(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	ctx := context.Background()

	if err := uc.Hide(ctx, 1, "flora1nobody", nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := uc.Hide(ctx, 1, "", nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("anonymous: expected Unauthorized, got %v", err)
	}
	if err := uc.Hide(ctx, 1, "flora1admin", nil); err != nil {
		t.Fatalf("hide failed: %v", err)
	}
	if len(repo.hidden) != 1 {
		t.Fatalf("repo not called: %v", repo.hidden)
	}
}

func TestSetVerifierValidatesPrincipal(t *testing.T) {
	uc, _, roles, _ := newTestUsecase()
	ctx := context.Background()

	err := uc.SetVerifier(ctx, "flora1nobody", "flora1target", true)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}

	err = uc.SetVerifier(ctx, "flora1admin", "not-a-principal", true)
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if len(roles.toggled) != 0 {
		t.Fatalf("role repo touched on invalid principal")
	}
}

func TestStatsMonthlyIsCached(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	ctx := context.Background()
	repo.statsResponse = [12]uint64{3: 7}

	first, err := uc.StatsMonthly(ctx, floralog.Filter{}, 55)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	second, err := uc.StatsMonthly(ctx, floralog.Filter{}, 55)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if first != second || first[3] != 7 {
		t.Fatalf("stats mismatch: %v %v", first, second)
	}
	if repo.statsCalls != 1 {
		t.Fatalf("expected one repo call, got %d", repo.statsCalls)
	}

	// Different filter, different cache slot.
	species := "quercus alba"
	if _, err := uc.StatsMonthly(ctx, floralog.Filter{Species: &species}, 55); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if repo.statsCalls != 2 {
		t.Fatalf("expected second repo call, got %d", repo.statsCalls)
	}
}

func TestStoreFlushesStatsCache(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	ctx := context.Background()

	if _, err := uc.StatsMonthly(ctx, floralog.Filter{}, 55); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	_, err := uc.Store(ctx, StoreInput{CID: validCID, Payload: floralog.Payload{"observed_at": float64(1)}})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if _, err := uc.StatsMonthly(ctx, floralog.Filter{}, 55); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if repo.statsCalls != 2 {
		t.Fatalf("cache not flushed on store: %d calls", repo.statsCalls)
	}
}
