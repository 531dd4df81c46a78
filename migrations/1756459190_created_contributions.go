package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("contributions")

		collection.Fields.Add(
			&core.TextField{Name: "member_id", Required: true},
			&core.NumberField{Name: "amount", OnlyInt: true},
			&core.TextField{Name: "mpesa_receipt_number"},
			&core.TextField{Name: "transaction_id"},
			&core.DateField{Name: "contribution_date"},
			&core.SelectField{Name: "status", Values: []string{"confirmed"}, MaxSelect: 1},
			&core.AutodateField{Name: "created", OnCreate: true},
		)

		collection.AddIndex("idx_contributions_member_id", false, "member_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("contributions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
