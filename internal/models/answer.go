package models

import (
	"time"

	"gorm.io/gorm"
)

// Rating bounds for feedback.
const (
	MinRating = 1
	MaxRating = 5
)

// Feedback is the asker's rating and review of one answer.
type Feedback struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// Answer is a response to exactly one doubt.
//
// Feedback is stored in nullable columns and exposed through the Feedback
// field once loaded; it is written once and never changed afterwards.
type Answer struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DoubtID      uint       `gorm:"not null;index" json:"doubt_id"`
	Text         string     `gorm:"type:text;not null" json:"text"`
	VideoURL     string     `json:"video_url,omitempty"`
	AudioURL     string     `json:"audio_url,omitempty"`
	AuthorID     uint       `gorm:"not null;index" json:"author_id"`
	AuthorName   string     `gorm:"not null" json:"author_name"`
	AuthorAvatar string     `json:"author_avatar"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FeedbackAt   *time.Time `json:"feedback_at,omitempty"`

	FeedbackRating *int      `gorm:"column:feedback_rating" json:"-"`
	FeedbackReview *string   `gorm:"column:feedback_review;type:text" json:"-"`
	Feedback       *Feedback `gorm:"-" json:"feedback,omitempty"`
}

// HasFeedback reports whether feedback has been attached.
func (a *Answer) HasFeedback() bool {
	return a.FeedbackRating != nil
}

// AfterFind populates Feedback from its storage columns.
func (a *Answer) AfterFind(_ *gorm.DB) error {
	a.syncFeedback()
	return nil
}

func (a *Answer) syncFeedback() {
	if a.FeedbackRating == nil {
		a.Feedback = nil
		return
	}
	fb := &Feedback{Rating: *a.FeedbackRating}
	if a.FeedbackReview != nil {
		fb.Review = *a.FeedbackReview
	}
	a.Feedback = fb
}

// SetFeedback fills the storage columns and the exposed field together.
func (a *Answer) SetFeedback(fb Feedback, at time.Time) {
	rating := fb.Rating
	review := fb.Review
	a.FeedbackRating = &rating
	a.FeedbackReview = &review
	a.FeedbackAt = &at
	a.syncFeedback()
}
