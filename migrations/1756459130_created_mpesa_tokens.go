package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("mpesa_tokens")

		collection.Fields.Add(
			&core.TextField{Name: "key", Required: true},
			&core.TextField{Name: "access_token"},
			&core.DateField{Name: "expires_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// single "current" slot; the upsert is last-write-wins
		collection.AddIndex("idx_mpesa_tokens_key", true, "key", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("mpesa_tokens")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
