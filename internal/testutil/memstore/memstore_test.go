package memstore

import (
	"testing"

	"regionchat_server/internal/model"
	"regionchat_server/internal/store"
	"regionchat_server/internal/testutil/storetest"
)

func TestStoreContract(t *testing.T) {
	for _, kind := range []store.Kind{store.KindRelational, store.KindDocument} {
		t.Run(string(kind), func(t *testing.T) {
			s := New(kind)
			storetest.Run(t, storetest.Harness{
				Backend: s.Backend(),
				Seed: func(t *testing.T, users ...model.UserProfile) {
					for _, u := range users {
						s.AddUser(u)
					}
				},
			})
		})
	}
}
