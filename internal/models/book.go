package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Book is a catalog entry with its on-shelf stock.
type Book struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Author    string    `db:"author" json:"author"`
	Publisher *string   `db:"publisher" json:"publisher,omitempty"`
	Stock     int       `db:"stock" json:"stock"`
	Section   string    `db:"section" json:"section"`
	Code      *string   `db:"code" json:"code,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Available reports whether at least one copy is on the shelf.
func (b Book) Available() bool {
	return b.Stock > 0
}

// CatalogCode derives the human readable code for a book, e.g. "HIS-007".
func CatalogCode(section string, id int64) string {
	prefix := strings.ToUpper(strings.TrimSpace(section))
	if utf8.RuneCountInString(prefix) > 3 {
		prefix = string([]rune(prefix)[:3])
	}
	if prefix == "" {
		prefix = "GEN"
	}
	return fmt.Sprintf("%s-%03d", prefix, id)
}

// BookFilter captures admin listing criteria.
type BookFilter struct {
	Search   string
	Section  string
	Page     int
	PageSize int
}
