package models

// Observation is the durable row behind one stored record. ObservedAt,
// Species and Geocode hold the creation-time index values; reloading the
// in-memory indices reads them from here, never from the payload again.
type Observation struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Submitter string `json:"submitter" gorm:"type:text;not null"`

	ObservedAt uint64  `json:"observedAt" gorm:"not null;index:idx_observations_observed_at"`
	Species    *string `json:"species" gorm:"type:text;index:idx_observations_species"`
	Geocode    string  `json:"geocode" gorm:"type:text;not null;default:'';index:idx_observations_geocode"`

	CID     string `json:"cid" gorm:"type:text;not null"`
	Payload string `json:"payload" gorm:"type:json;not null"`

	StoredAt  uint64 `json:"storedAt" gorm:"not null"`
	StoredSeq uint64 `json:"storedSeq" gorm:"not null"`

	Hidden       bool    `json:"hidden" gorm:"not null;default:false"`
	HiddenReason *string `json:"hiddenReason" gorm:"type:text"`

	Annotations   []ObservationAnnotation   `json:"annotations" gorm:"foreignKey:ObservationID;constraint:OnDelete:CASCADE"`
	Verifications []ObservationVerification `json:"verifications" gorm:"foreignKey:ObservationID;constraint:OnDelete:CASCADE"`
}

// ObservationAnnotation rows are append-only; the autoincrement id preserves
// append order across reloads.
type ObservationAnnotation struct {
	ID            uint64  `json:"id" gorm:"primaryKey;autoIncrement"`
	ObservationID uint64  `json:"observationId" gorm:"not null;index"`
	At            uint64  `json:"at" gorm:"not null"`
	By            string  `json:"by" gorm:"type:text;not null"`
	Note          *string `json:"note" gorm:"type:text"`
	PhotoCID      *string `json:"photoCid" gorm:"column:photo_cid;type:text"`
	Tags          *string `json:"tags" gorm:"type:json"`
}

// ObservationVerification rows are append-only, same ordering rule as
// annotations.
type ObservationVerification struct {
	ID            uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	ObservationID uint64 `json:"observationId" gorm:"not null;index"`
	At            uint64 `json:"at" gorm:"not null"`
	Verifier      string `json:"verifier" gorm:"type:text;not null"`
	TaxonID       string `json:"taxonId" gorm:"type:text;not null"`
	Confidence    uint8  `json:"confidence" gorm:"not null"`
}

// Verifier is one entry of the verifier principal set.
type Verifier struct {
	Principal string `json:"principal" gorm:"primaryKey;type:text"`
	Enabled   bool   `json:"enabled" gorm:"not null;default:false"`
}

// StoreState is a single-row table holding the monotonic counters. NextID is
// never reset or reused, even across restarts.
type StoreState struct {
	ID     uint8  `json:"id" gorm:"primaryKey"`
	NextID uint64 `json:"nextId" gorm:"not null"`
	Seq    uint64 `json:"seq" gorm:"not null"`
}
