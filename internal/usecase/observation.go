package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/zeebo/xxh3"

	"github.com/floralog/floralog"
	"github.com/floralog/floralog/geocode"
	"github.com/floralog/floralog/internal/domain"
)

// StoreInput is the validated input for storing an observation.
type StoreInput struct {
	Submitter string
	Payload   floralog.Payload
	CID       string
}

// AnnotateInput carries one annotation to append.
type AnnotateInput struct {
	Requester string
	Note      *string
	PhotoCID  *string
	Tags      *[]string
}

// VerifyInput carries one verification to append.
type VerifyInput struct {
	Requester  string
	TaxonID    string
	Confidence uint8
}

type ObservationUsecase struct {
	repo       ObservationRepository
	roles      RoleRepository
	publisher  EventPublisher
	statsCache *cache.Cache
	now        func() time.Time
}

func NewObservationUsecase(repo ObservationRepository, roles RoleRepository, publisher EventPublisher) *ObservationUsecase {
	return &ObservationUsecase{
		repo:       repo,
		roles:      roles,
		publisher:  publisher,
		statsCache: cache.New(time.Minute, 5*time.Minute),
		now:        time.Now,
	}
}

// Store extracts the index values from the payload, validates the content id
// and creates the record. The payload itself is stored verbatim.
func (uc *ObservationUsecase) Store(ctx context.Context, input StoreInput) (uint64, error) {
	observedAt, ok := input.Payload.ObservedAt()
	if !ok {
		return 0, domain.BadRequestError{Msg: "payload.observed_at (seconds) is required"}
	}

	cid, err := normalizeCID(input.CID)
	if err != nil {
		return 0, err
	}

	rec := floralog.Record{
		Submitter:  input.Submitter,
		ObservedAt: observedAt,
		CID:        cid,
		Payload:    input.Payload,
		CreatedAt:  uint64(uc.now().Unix()),
	}

	if raw, ok := input.Payload.Species(); ok {
		if species := floralog.NormalizeSpecies(raw); species != "" {
			rec.Species = &species
		}
	}
	if lat, lon, ok := input.Payload.LatLon(); ok {
		rec.Geocode = geocode.Encode(lat, lon, geocode.DefaultPrecision)
	}

	id, err := uc.repo.Create(ctx, rec)
	if err != nil {
		return 0, err
	}

	uc.statsCache.Flush()

	event := floralog.Event{
		Type:    floralog.EventObservationStored,
		ID:      id,
		Species: rec.Species,
		Geocode: rec.Geocode,
		CID:     rec.CID,
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish event", slog.String("error", err.Error()))
	}

	return id, nil
}

func (uc *ObservationUsecase) Get(ctx context.Context, id uint64) (*floralog.Record, error) {
	return uc.repo.Get(ctx, id)
}

// Annotate appends an annotation. A provided note must not be the empty
// string, and at least one of note, photo cid and tags must carry content.
func (uc *ObservationUsecase) Annotate(ctx context.Context, id uint64, input AnnotateInput) error {
	if input.Note != nil && *input.Note == "" {
		return domain.BadRequestError{Msg: "note must not be empty"}
	}

	hasContent := input.Note != nil ||
		(input.PhotoCID != nil && *input.PhotoCID != "") ||
		(input.Tags != nil && len(*input.Tags) > 0)
	if !hasContent {
		return domain.BadRequestError{Msg: "annotation must carry a note, a photo_cid or tags"}
	}

	return uc.repo.Annotate(ctx, id, floralog.Annotation{
		At:       uint64(uc.now().Unix()),
		By:       input.Requester,
		Note:     input.Note,
		PhotoCID: input.PhotoCID,
		Tags:     input.Tags,
	})
}

// Verify appends a verification. Only enabled verifiers may call this.
func (uc *ObservationUsecase) Verify(ctx context.Context, id uint64, input VerifyInput) error {
	ok, err := uc.roles.IsVerifier(ctx, input.Requester)
	if err != nil {
		return err
	}
	if !ok {
		return domain.UnauthorizedError{Reason: "requester is not a verifier"}
	}

	taxon := strings.TrimSpace(input.TaxonID)
	if taxon == "" {
		return domain.BadRequestError{Msg: "taxon_id must not be empty"}
	}

	return uc.repo.AddVerification(ctx, id, floralog.VerificationEntry{
		At:         uint64(uc.now().Unix()),
		Verifier:   input.Requester,
		TaxonID:    taxon,
		Confidence: input.Confidence,
	})
}

// Hide soft-deletes a record from list, count and stats. Admin only.
func (uc *ObservationUsecase) Hide(ctx context.Context, id uint64, requester string, reason *string) error {
	ok, err := uc.roles.IsAdmin(ctx, requester)
	if err != nil {
		return err
	}
	if !ok {
		return domain.UnauthorizedError{Reason: "requester is not the admin"}
	}

	if err := uc.repo.Hide(ctx, id, reason); err != nil {
		return err
	}
	uc.statsCache.Flush()
	return nil
}

// SetVerifier toggles a principal's verifier role. Admin only.
func (uc *ObservationUsecase) SetVerifier(ctx context.Context, requester, principal string, enabled bool) error {
	ok, err := uc.roles.IsAdmin(ctx, requester)
	if err != nil {
		return err
	}
	if !ok {
		return domain.UnauthorizedError{Reason: "requester is not the admin"}
	}

	if !floralog.IsPrincipal(principal) {
		return domain.BadRequestError{Msg: "invalid principal"}
	}

	return uc.roles.SetVerifier(ctx, principal, enabled)
}

func (uc *ObservationUsecase) List(ctx context.Context, q floralog.ListQuery) (floralog.Page, error) {
	return uc.repo.List(ctx, q)
}

func (uc *ObservationUsecase) Count(ctx context.Context, f floralog.Filter) (uint64, error) {
	return uc.repo.Count(ctx, f)
}

// StatsMonthly memoizes the monthly histogram per filter for a short window.
func (uc *ObservationUsecase) StatsMonthly(ctx context.Context, f floralog.Filter, year uint32) ([12]uint64, error) {
	key := statsCacheKey(f, year)
	if cached, found := uc.statsCache.Get(key); found {
		return cached.([12]uint64), nil
	}

	months, err := uc.repo.StatsMonthly(ctx, f, year)
	if err != nil {
		return months, err
	}
	uc.statsCache.Set(key, months, cache.DefaultExpiration)
	return months, nil
}

func statsCacheKey(f floralog.Filter, year uint32) string {
	var b strings.Builder
	fmt.Fprintf(&b, "y=%d", year)
	if f.Species != nil {
		fmt.Fprintf(&b, ";s=%s", floralog.NormalizeSpecies(*f.Species))
	}
	if f.GeoPrefix != nil {
		fmt.Fprintf(&b, ";g=%s", *f.GeoPrefix)
	}
	return fmt.Sprintf("%016x", xxh3.HashString(b.String()))
}

// normalizeCID trims a submitted content id and strips the optional scheme.
// The check is a sanity bound, not a multihash parse.
func normalizeCID(cid string) (string, error) {
	cid = strings.TrimSpace(cid)
	cid = strings.TrimPrefix(cid, "ipfs://")
	if cid == "" {
		return "", domain.BadRequestError{Msg: "cid is required"}
	}
	if len(cid) < 20 || len(cid) > 200 {
		return "", domain.BadRequestError{Msg: "cid length seems invalid"}
	}
	for i := 0; i < len(cid); i++ {
		c := cid[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-' || c == '=':
		default:
			return "", domain.BadRequestError{Msg: "cid has invalid characters"}
		}
	}
	return cid, nil
}
