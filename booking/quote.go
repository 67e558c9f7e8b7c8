package booking

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// MaxAmount is the largest price or total the rentals table stores (NUMERIC(10,2)).
const MaxAmount = 99999999.99

// Quote returns the number of billed days and the total price.
// A partial day counts as a full one and a same-day rental is billed as one day.
func Quote(start, end time.Time, dailyRate float64) (days int, total float64) {
	days = int(math.Ceil(float64(end.Sub(start)) / float64(day)))
	if days < 1 {
		days = 1
	}

	total = math.Round(float64(days)*dailyRate*100) / 100
	return days, total
}
