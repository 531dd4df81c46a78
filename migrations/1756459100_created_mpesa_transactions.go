package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("mpesa_transactions")

		collection.Fields.Add(
			&core.TextField{Name: "merchant_request_id"},
			&core.TextField{Name: "checkout_request_id", Required: true},
			&core.TextField{Name: "phone_number"},
			&core.NumberField{Name: "amount", OnlyInt: true},
			&core.TextField{Name: "account_reference"},
			&core.TextField{Name: "transaction_desc"},
			&core.SelectField{Name: "status", Values: []string{"pending", "completed", "failed"}, MaxSelect: 1},
			&core.NumberField{Name: "result_code", OnlyInt: true},
			&core.TextField{Name: "result_desc"},
			&core.TextField{Name: "mpesa_receipt_number"},
			&core.TextField{Name: "transaction_date"},
			&core.TextField{Name: "callback_metadata"},
			&core.TextField{Name: "member_id"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// one transaction row per checkout request id
		collection.AddIndex("idx_mpesa_transactions_checkout_request_id", true, "checkout_request_id", "")
		collection.AddIndex("idx_mpesa_transactions_status_created", false, "status, created", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("mpesa_transactions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
