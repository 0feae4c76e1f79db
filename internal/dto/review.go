package dto

// SubmitReviewRequest is the POST /loans/:id/reviews payload.
type SubmitReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}
