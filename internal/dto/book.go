package dto

// UpsertBookRequest is the admin payload for creating or editing a book.
type UpsertBookRequest struct {
	Title     string  `json:"title" validate:"required,max=255"`
	Author    string  `json:"author" validate:"required,max=255"`
	Publisher *string `json:"publisher" validate:"omitempty,max=255"`
	Stock     *int    `json:"stock" validate:"required,gte=0"`
	Section   string  `json:"section" validate:"required,max=80"`
}

// BookListQuery captures GET /admin/books query parameters.
type BookListQuery struct {
	Search   string `form:"q"`
	Section  string `form:"section"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
