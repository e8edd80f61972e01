package detector

import (
	"fmt"
	"strconv"
	"time"

	"finassist/internal/core"
)

var seriesStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// series builds expense transactions on consecutive days.
func series(amounts ...float64) []core.Transaction {
	txs := make([]core.Transaction, len(amounts))
	for i, a := range amounts {
		txs[i] = core.Transaction{
			ID:         fmt.Sprintf("tx-%02d", i),
			UserID:     "user-1",
			CategoryID: "food",
			Type:       core.Expense,
			Amount:     core.Amount(strconv.FormatFloat(a, 'f', -1, 64)),
			Date:       seriesStart.AddDate(0, 0, i).Format("2006-01-02"),
		}
	}
	return txs
}

func ids(anomalies []core.Anomaly) []string {
	out := make([]string, len(anomalies))
	for i, a := range anomalies {
		out[i] = a.ID
	}
	return out
}
