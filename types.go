package floralog

// Record is a stored observation. ObservedAt, Species and Geocode are fixed at
// creation time and are the only values the secondary indices ever see; later
// mutations append to the two lists or flip the hidden flag, nothing else.
type Record struct {
	ID        uint64 `json:"id"`
	Submitter string `json:"submitter"`

	ObservedAt uint64  `json:"observedAt"`
	Species    *string `json:"species,omitempty"`
	Geocode    string  `json:"geocode,omitempty"`

	CID     string  `json:"cid"`
	Payload Payload `json:"payload"`

	CreatedAt    uint64 `json:"createdAt"`
	CreatedAtSeq uint64 `json:"createdAtSeq"`

	Hidden       bool    `json:"hidden"`
	HiddenReason *string `json:"hiddenReason,omitempty"`

	Annotations   []Annotation        `json:"annotations"`
	Verifications []VerificationEntry `json:"verifications"`
}

// Annotation is an append-only note attached to a record.
type Annotation struct {
	At       uint64    `json:"at"`
	By       string    `json:"by"`
	Note     *string   `json:"note,omitempty"`
	PhotoCID *string   `json:"photoCid,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

// VerificationEntry is an append-only taxon confirmation by a verifier.
type VerificationEntry struct {
	At         uint64 `json:"at"`
	Verifier   string `json:"verifier"`
	TaxonID    string `json:"taxonId"`
	Confidence uint8  `json:"confidence"`
}

// Filter narrows List/Count/StatsMonthly scans. Exactly one index drives the
// scan (species, then geocode prefix, then time); the rest apply per record.
type Filter struct {
	Species   *string
	GeoPrefix *string
	Start     *uint64
	End       *uint64
}

// ListQuery extends Filter with pagination. StartAfter is the exclusive id
// bound returned as NextStartAfter by the previous page.
type ListQuery struct {
	Filter
	Limit      *uint32
	StartAfter *uint64
}

// Page is one resumable slice of a List scan. NextStartAfter is present only
// when the page came back exactly full.
type Page struct {
	Records        []Record `json:"records"`
	NextStartAfter *uint64  `json:"nextStartAfter,omitempty"`
}

// Event is broadcast over the signal channel when an observation is stored.
type Event struct {
	Type    string  `json:"type"`
	ID      uint64  `json:"id"`
	Species *string `json:"species,omitempty"`
	Geocode string  `json:"geocode,omitempty"`
	CID     string  `json:"cid"`
}

const EventObservationStored = "observation.stored"
