package orders

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/api-gateway/internal/store"
)

type Order struct {
	ID      int   `json:"id"`
	UserID  int   `json:"userId"`
	Entries []int `json:"entries"`
}

// Draft is the body of POST /orders.
type Draft struct {
	UserID  int   `json:"userId"`
	Entries []int `json:"entries"`
}

func (d Draft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.UserID, validation.Required.Error("userId is required"), validation.Min(1)),
	)
}

// Changes is the body of PUT. Absent or empty entries leave the order alone.
type Changes struct {
	Entries []int `json:"entries"`
}

type deleted struct {
	Message      string `json:"message"`
	DeletedOrder Order  `json:"deletedOrder"`
}

func newTable() *store.Table[Order] {
	return store.New(func(o *Order, id int) { o.ID = id })
}

func mergeOrder(existing *Order, incoming Order) {
	if len(incoming.Entries) > 0 {
		existing.Entries = incoming.Entries
	}
}
