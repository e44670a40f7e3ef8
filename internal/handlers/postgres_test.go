package handlers

import (
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/courier/internal/repository/postgres"
	"github.com/nkiryanov/courier/internal/testutil"
)

// Same flows over postgres: one transaction per test, rolled back at the end
func TestRouter_Postgres(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("delivery scenario", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			deliveryScenario(t, serve(t, postgres.NewStorage(tx)))
		})
	})

	t.Run("accept twice", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			ts := serve(t, postgres.NewStorage(tx))
			o := ts.createOrder(t, "10")

			ts.transition(t, driver, o, "accept", http.StatusOK)
			ts.transition(t, driver2, o, "accept", http.StatusConflict)
		})
	})
}
