package indexer

import "fmt"

// Batch is an inclusive index range into the address list.
type Batch struct {
	From int
	To   int
}

// SplitBatches splits total items into batches of at most batchSize.
func SplitBatches(total, batchSize int) ([]Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if total < 0 {
		return nil, fmt.Errorf("total must not be negative")
	}

	batches := make([]Batch, 0, (total+batchSize-1)/batchSize)
	for start := 0; start < total; start += batchSize {
		end := start + batchSize - 1
		if end >= total {
			end = total - 1
		}
		batches = append(batches, Batch{From: start, To: end})
	}
	return batches, nil
}
