package repository

import (
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/noah-isme/sma-library-api/internal/models"
)

var pg = goqu.Dialect("postgres")

var bookSelect = []interface{}{"id", "title", "author", "publisher", "stock", "section", "code", "created_at", "updated_at"}

// searchableBookColumns are the human identifying text fields matched by catalog search.
var searchableBookColumns = []string{"title", "author", "section", "publisher", "code"}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func availableBooksQuery(search, section string) (string, []interface{}, error) {
	ds := pg.From("books").
		Select(bookSelect...).
		Where(goqu.C("stock").Gt(0))
	ds = applyBookFilters(ds, search, section)
	return ds.
		Order(goqu.C("section").Asc(), goqu.C("title").Asc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

func bookListQuery(filter models.BookFilter) (string, []interface{}, error) {
	page, size := normalisePage(filter.Page, filter.PageSize)
	ds := applyBookFilters(pg.From("books").Select(bookSelect...), filter.Search, filter.Section)
	return ds.
		Order(goqu.C("section").Asc(), goqu.C("title").Asc(), goqu.C("id").Asc()).
		Limit(uint(size)).
		Offset(uint((page - 1) * size)).
		Prepared(true).
		ToSQL()
}

func bookCountQuery(filter models.BookFilter) (string, []interface{}, error) {
	ds := applyBookFilters(pg.From("books").Select(goqu.COUNT(goqu.Star())), filter.Search, filter.Section)
	return ds.Prepared(true).ToSQL()
}

func applyBookFilters(ds *goqu.SelectDataset, search, section string) *goqu.SelectDataset {
	if term := trimmed(search); term != "" {
		ds = ds.Where(searchPredicate(term))
	}
	if sec := trimmed(section); sec != "" {
		ds = ds.Where(goqu.C("section").Eq(sec))
	}
	return ds
}

func searchPredicate(term string) exp.ExpressionList {
	pattern := "%" + escapeLike(term) + "%"
	ors := make([]exp.Expression, 0, len(searchableBookColumns))
	for _, col := range searchableBookColumns {
		ors = append(ors, goqu.C(col).ILike(pattern))
	}
	return goqu.Or(ors...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func normalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
