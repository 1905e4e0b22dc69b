package repository

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/btree"
	"gorm.io/gorm"

	"github.com/floralog/floralog"
	"github.com/floralog/floralog/internal/domain"
	"github.com/floralog/floralog/internal/infra/database/models"
)

const (
	// DefaultLimit is applied when a List call carries no limit.
	DefaultLimit = 100
	// MaxLimit caps any requested page size; a scan never walks unbounded.
	MaxLimit = 5000

	// secondsPerYear is the fixed-length pseudo-year of the monthly stats:
	// 365 days flat, no leap handling. The approximation is part of the
	// contract, not a shortcut to improve on.
	secondsPerYear = 31_536_000

	btreeDegree = 32
)

// timeKey orders the time index by (observed_at, id).
type timeKey struct {
	at uint64
	id uint64
}

func lessTimeKey(a, b timeKey) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	return a.id < b.id
}

// termKey orders the species and geocode indices by (term, id).
type termKey struct {
	term string
	id   uint64
}

func lessTermKey(a, b termKey) bool {
	if a.term != b.term {
		return a.term < b.term
	}
	return a.id < b.id
}

// ObservationRepository owns the monotonic id counter, the primary id→record
// map and the three ordered secondary indices. Secondary entries are written
// only at creation time; annotate/verify/hide never touch them.
//
// db is optional. When set, every mutation is written through to Postgres
// before memory is updated, and Load repopulates the engine from the stored
// rows at startup. Index entries are rebuilt from the creation-time columns
// on the row, never recomputed from the payload.
//
// The mutex serializes operations; it is the in-process rendition of the
// one-call-at-a-time execution model the engine assumes.
type ObservationRepository struct {
	mu sync.RWMutex
	db *gorm.DB

	records   map[uint64]*floralog.Record
	byTime    *btree.BTreeG[timeKey]
	bySpecies *btree.BTreeG[termKey]
	byGeo     *btree.BTreeG[termKey]

	nextID uint64
	seq    uint64
}

func NewObservationRepository(db *gorm.DB, startID uint64) *ObservationRepository {
	if startID == 0 {
		startID = 1
	}
	return &ObservationRepository{
		db:        db,
		records:   make(map[uint64]*floralog.Record),
		byTime:    btree.NewG(btreeDegree, lessTimeKey),
		bySpecies: btree.NewG(btreeDegree, lessTermKey),
		byGeo:     btree.NewG(btreeDegree, lessTermKey),
		nextID:    startID,
	}
}

// Load restores counters, records and indices from Postgres. Without a db it
// is a no-op and the repository starts empty at the configured start id.
func (r *ObservationRepository) Load(ctx context.Context) error {
	if r.db == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := models.StoreState{ID: 1, NextID: r.nextID, Seq: 0}
	if err := r.db.WithContext(ctx).FirstOrCreate(&state, models.StoreState{ID: 1}).Error; err != nil {
		return err
	}
	r.nextID = state.NextID
	r.seq = state.Seq

	var rows []models.Observation
	result := r.db.WithContext(ctx).
		Preload("Annotations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Verifications", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		FindInBatches(&rows, 500, func(tx *gorm.DB, batch int) error {
			for i := range rows {
				rec, err := rowToRecord(&rows[i])
				if err != nil {
					return err
				}
				r.insertLocked(rec)
			}
			return nil
		})
	return result.Error
}

// Create allocates the next id, persists the record and inserts its index
// entries. The caller provides creation-time values; id, sequence and the
// mutable fields are stamped here.
func (r *ObservationRepository) Create(ctx context.Context, rec floralog.Record) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.ID = r.nextID
	rec.CreatedAtSeq = r.seq + 1
	rec.Hidden = false
	rec.HiddenReason = nil
	rec.Annotations = []floralog.Annotation{}
	rec.Verifications = []floralog.VerificationEntry{}

	if r.db != nil {
		row, err := recordToRow(&rec)
		if err != nil {
			return 0, err
		}
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			return tx.Model(&models.StoreState{}).
				Where("id = ?", 1).
				Updates(map[string]any{"next_id": rec.ID + 1, "seq": rec.CreatedAtSeq}).Error
		})
		if err != nil {
			return 0, err
		}
	}

	r.insertLocked(&rec)
	return rec.ID, nil
}

// insertLocked registers a record in the primary map and the secondary
// indices, and advances the counters past it.
func (r *ObservationRepository) insertLocked(rec *floralog.Record) {
	r.records[rec.ID] = rec
	r.byTime.ReplaceOrInsert(timeKey{at: rec.ObservedAt, id: rec.ID})
	if rec.Species != nil {
		r.bySpecies.ReplaceOrInsert(termKey{term: *rec.Species, id: rec.ID})
	}
	if rec.Geocode != "" {
		r.byGeo.ReplaceOrInsert(termKey{term: rec.Geocode, id: rec.ID})
	}
	if rec.ID >= r.nextID {
		r.nextID = rec.ID + 1
	}
	if rec.CreatedAtSeq > r.seq {
		r.seq = rec.CreatedAtSeq
	}
}

// Annotate appends an annotation. The record's index entries are untouched.
func (r *ObservationRepository) Annotate(ctx context.Context, id uint64, a floralog.Annotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.NotFoundError{Resource: "observation"}
	}

	if r.db != nil {
		row, err := annotationToRow(id, &a)
		if err != nil {
			return err
		}
		if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
			return err
		}
	}

	rec.Annotations = append(rec.Annotations, a)
	return nil
}

// AddVerification appends a verification entry.
func (r *ObservationRepository) AddVerification(ctx context.Context, id uint64, v floralog.VerificationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.NotFoundError{Resource: "observation"}
	}

	if r.db != nil {
		row := &models.ObservationVerification{
			ObservationID: id,
			At:            v.At,
			Verifier:      v.Verifier,
			TaxonID:       v.TaxonID,
			Confidence:    v.Confidence,
		}
		if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
			return err
		}
	}

	rec.Verifications = append(rec.Verifications, v)
	return nil
}

// Hide flags a record out of every read path except Get. Re-hiding an
// already hidden record just overwrites the reason.
func (r *ObservationRepository) Hide(ctx context.Context, id uint64, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.NotFoundError{Resource: "observation"}
	}

	if r.db != nil {
		err := r.db.WithContext(ctx).Model(&models.Observation{}).
			Where("id = ?", id).
			Updates(map[string]any{"hidden": true, "hidden_reason": reason}).Error
		if err != nil {
			return err
		}
	}

	rec.Hidden = true
	if reason != nil {
		s := *reason
		rec.HiddenReason = &s
	} else {
		rec.HiddenReason = nil
	}
	return nil
}

// Get returns a copy of the record, hidden or not, or nil when the id is
// unknown. Absence is not an error on the read path.
func (r *ObservationRepository) Get(ctx context.Context, id uint64) (*floralog.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(rec)
	return &out, nil
}

// List walks the driving index in ascending order, applies the residual
// filters and returns one page. NextStartAfter is set only when the page is
// exactly full, meaning there may be more.
func (r *ObservationRepository) List(ctx context.Context, q floralog.ListQuery) (floralog.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := DefaultLimit
	if q.Limit != nil {
		limit = int(*q.Limit)
		if limit > MaxLimit {
			limit = MaxLimit
		}
	}

	records := []floralog.Record{}
	r.scanLocked(q.Filter, q.StartAfter, func(rec *floralog.Record) bool {
		records = append(records, cloneRecord(rec))
		return len(records) != limit
	})

	page := floralog.Page{Records: records}
	if len(records) == limit && limit > 0 {
		last := records[len(records)-1].ID
		page.NextStartAfter = &last
	}
	return page, nil
}

// Count is List without pagination: it sums every match.
func (r *ObservationRepository) Count(ctx context.Context, f floralog.Filter) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count uint64
	r.scanLocked(f, nil, func(rec *floralog.Record) bool {
		count++
		return true
	})
	return count, nil
}

// StatsMonthly buckets the year's matches into twelve fixed-length months.
func (r *ObservationRepository) StatsMonthly(ctx context.Context, f floralog.Filter, year uint32) ([12]uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lo := uint64(year) * secondsPerYear
	hi := uint64(year+1)*secondsPerYear - 1
	f.Start = &lo
	f.End = &hi

	var months [12]uint64
	r.scanLocked(f, nil, func(rec *floralog.Record) bool {
		m := rec.ObservedAt % secondsPerYear * 12 / secondsPerYear
		if m > 11 {
			m = 11
		}
		months[m]++
		return true
	})
	return months, nil
}

// scanLocked picks the driving index by fixed priority (species, then
// geocode prefix, then time range) and feeds every visible match to visit,
// stopping when visit returns false. The filters not covered by the driving
// index are applied per record; species never acts as a residual filter.
// startAfter is the exclusive cursor bound from the previous page.
func (r *ObservationRepository) scanLocked(f floralog.Filter, startAfter *uint64, visit func(*floralog.Record) bool) {
	switch {
	case f.Species != nil:
		species := floralog.NormalizeSpecies(*f.Species)
		r.bySpecies.AscendGreaterOrEqual(termKey{term: species}, func(k termKey) bool {
			if k.term != species {
				return false
			}
			if startAfter != nil && k.id <= *startAfter {
				return true
			}
			rec := r.records[k.id]
			if rec == nil || rec.Hidden || !matchResidual(rec, f.GeoPrefix, f.Start, f.End) {
				return true
			}
			return visit(rec)
		})

	case f.GeoPrefix != nil:
		prefix := *f.GeoPrefix
		r.byGeo.AscendGreaterOrEqual(termKey{term: prefix}, func(k termKey) bool {
			if !strings.HasPrefix(k.term, prefix) {
				return false
			}
			if startAfter != nil && k.id <= *startAfter {
				return true
			}
			rec := r.records[k.id]
			if rec == nil || rec.Hidden || !matchResidual(rec, nil, f.Start, f.End) {
				return true
			}
			return visit(rec)
		})

	default:
		var lo, hi uint64 = 0, ^uint64(0)
		if f.Start != nil {
			lo = *f.Start
		}
		if f.End != nil {
			hi = *f.End
		}
		// No cursor: inclusive from (lo, 0). With cursor: strictly after the
		// cursor record's own index key, so entries already returned are never
		// revisited. Pivoting at (lo, cursor) instead would sort before every
		// key with a larger observed_at and replay the whole range.
		pivot := timeKey{at: lo}
		exclusive := false
		if startAfter != nil {
			at := lo
			if rec := r.records[*startAfter]; rec != nil && rec.ObservedAt > at {
				at = rec.ObservedAt
			}
			pivot = timeKey{at: at, id: *startAfter}
			exclusive = true
		}
		r.byTime.AscendGreaterOrEqual(pivot, func(k timeKey) bool {
			if exclusive && k == pivot {
				return true
			}
			if k.at > hi {
				return false
			}
			rec := r.records[k.id]
			if rec == nil || rec.Hidden || !matchResidual(rec, f.GeoPrefix, nil, nil) {
				return true
			}
			return visit(rec)
		})
	}
}

func matchResidual(rec *floralog.Record, geoPrefix *string, start, end *uint64) bool {
	if geoPrefix != nil && !strings.HasPrefix(rec.Geocode, *geoPrefix) {
		return false
	}
	if start != nil && rec.ObservedAt < *start {
		return false
	}
	if end != nil && rec.ObservedAt > *end {
		return false
	}
	return true
}

func cloneRecord(rec *floralog.Record) floralog.Record {
	out := *rec
	if rec.Species != nil {
		s := *rec.Species
		out.Species = &s
	}
	if rec.HiddenReason != nil {
		s := *rec.HiddenReason
		out.HiddenReason = &s
	}
	out.Annotations = append([]floralog.Annotation{}, rec.Annotations...)
	out.Verifications = append([]floralog.VerificationEntry{}, rec.Verifications...)
	if rec.Payload != nil {
		p := make(floralog.Payload, len(rec.Payload))
		for k, v := range rec.Payload {
			p[k] = v
		}
		out.Payload = p
	}
	return out
}

/* ---- row mapping ---- */

func recordToRow(rec *floralog.Record) (*models.Observation, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, err
	}
	return &models.Observation{
		ID:           rec.ID,
		Submitter:    rec.Submitter,
		ObservedAt:   rec.ObservedAt,
		Species:      rec.Species,
		Geocode:      rec.Geocode,
		CID:          rec.CID,
		Payload:      string(payload),
		StoredAt:     rec.CreatedAt,
		StoredSeq:    rec.CreatedAtSeq,
		Hidden:       rec.Hidden,
		HiddenReason: rec.HiddenReason,
	}, nil
}

func rowToRecord(row *models.Observation) (*floralog.Record, error) {
	var payload floralog.Payload
	if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
		return nil, err
	}

	rec := &floralog.Record{
		ID:            row.ID,
		Submitter:     row.Submitter,
		ObservedAt:    row.ObservedAt,
		Species:       row.Species,
		Geocode:       row.Geocode,
		CID:           row.CID,
		Payload:       payload,
		CreatedAt:     row.StoredAt,
		CreatedAtSeq:  row.StoredSeq,
		Hidden:        row.Hidden,
		HiddenReason:  row.HiddenReason,
		Annotations:   make([]floralog.Annotation, 0, len(row.Annotations)),
		Verifications: make([]floralog.VerificationEntry, 0, len(row.Verifications)),
	}

	for i := range row.Annotations {
		a := &row.Annotations[i]
		var tags *[]string
		if a.Tags != nil {
			var decoded []string
			if err := json.Unmarshal([]byte(*a.Tags), &decoded); err != nil {
				return nil, err
			}
			tags = &decoded
		}
		rec.Annotations = append(rec.Annotations, floralog.Annotation{
			At:       a.At,
			By:       a.By,
			Note:     a.Note,
			PhotoCID: a.PhotoCID,
			Tags:     tags,
		})
	}

	for i := range row.Verifications {
		v := &row.Verifications[i]
		rec.Verifications = append(rec.Verifications, floralog.VerificationEntry{
			At:         v.At,
			Verifier:   v.Verifier,
			TaxonID:    v.TaxonID,
			Confidence: v.Confidence,
		})
	}

	return rec, nil
}

func annotationToRow(id uint64, a *floralog.Annotation) (*models.ObservationAnnotation, error) {
	var tags *string
	if a.Tags != nil {
		encoded, err := json.Marshal(*a.Tags)
		if err != nil {
			return nil, err
		}
		s := string(encoded)
		tags = &s
	}
	return &models.ObservationAnnotation{
		ObservationID: id,
		At:            a.At,
		By:            a.By,
		Note:          a.Note,
		PhotoCID:      a.PhotoCID,
		Tags:          tags,
	}, nil
}
