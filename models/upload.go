package models

import (
	"time"
)

// Upload records one stored photo for a profile. The raw file lands under
// the upload base dir keyed by ObjectKey; the normalizer fills
// NormalizedPath once the pass-photo variant exists.
type Upload struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProfileID   uint    `gorm:"index;not null"` // FK to profiles.id
	Profile     Profile `gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	FileName    string  `gorm:"size:255;not null"` // original client file name
	ObjectKey   string  `gorm:"size:64;uniqueIndex;not null"`
	StorePath   string  `gorm:"column:store_path;size:512"` // relative path under the upload base (e.g. photos/<key>.jpg)
	ContentType string  `gorm:"size:128"`
	// Filled by the photo normalizer (process/cmd_photo_normalizer).
	Normalized     bool   `gorm:"default:false;index"`
	NormalizedPath string `gorm:"size:512"`
	FailedReason   string `gorm:"size:255"` // set when normalization failed; record kept for review
}
