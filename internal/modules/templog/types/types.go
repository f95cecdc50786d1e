package types

// RecordID is the identifier the store assigns on insert.
type RecordID int64

// Position is a resolved geographic coordinate pair.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Record is one stored temperature reading tagged with where it was taken.
// Records are append-only.
type Record struct {
	ID   RecordID `json:"id,omitempty"`
	Temp int      `json:"temp"`
	Lat  float64  `json:"lat" validate:"gte=-90,lte=90"`
	Long float64  `json:"long" validate:"gte=-180,lte=180"`
}

// TempRange is an inclusive temperature bound. Low > High is allowed and
// matches nothing.
type TempRange struct {
	Low  int
	High int
}

