package models

import (
	"sort"
	"time"
)

type Borrow struct {
	ID        string    `json:"id" bson:"_id"`
	BookID    string    `json:"book" bson:"book"`
	Quantity  int       `json:"quantity" bson:"quantity" validate:"gte=1"`
	DueDate   time.Time `json:"dueDate" bson:"dueDate"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

type BookRef struct {
	Title string `json:"title" bson:"title"`
	ISBN  string `json:"isbn" bson:"isbn"`
}

type BorrowSummary struct {
	Book          BookRef `json:"book" bson:"book"`
	TotalQuantity int     `json:"totalQuantity" bson:"totalQuantity"`
}

// Summarize totals borrowed quantities per book, drops borrows whose book is
// gone and orders the rows by total, largest first. Ties keep the order in
// which each book was first borrowed.
func Summarize(borrows []Borrow, books map[string]Book) []BorrowSummary {
	totals := make(map[string]int)
	var order []string
	for _, br := range borrows {
		if _, seen := totals[br.BookID]; !seen {
			order = append(order, br.BookID)
		}
		totals[br.BookID] += br.Quantity
	}

	out := make([]BorrowSummary, 0, len(order))
	for _, bid := range order {
		book, ok := books[bid]
		if !ok {
			continue
		}
		out = append(out, BorrowSummary{
			Book:          BookRef{Title: book.Title, ISBN: book.ISBN},
			TotalQuantity: totals[bid],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalQuantity > out[j].TotalQuantity
	})
	return out
}
