package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("payment_notifications")

		collection.Fields.Add(
			&core.TextField{Name: "checkout_request_id", Required: true},
			&core.TextField{Name: "status"},
			&core.NumberField{Name: "amount", OnlyInt: true},
			&core.TextField{Name: "receipt_number"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)

		collection.AddIndex("idx_payment_notifications_checkout_request_id", false, "checkout_request_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payment_notifications")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
