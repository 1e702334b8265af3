package order

import "fmt"

// MaxSplitChildren caps the number of child orders any plan may
// produce. A plan over the cap is rejected before anything is placed.
const MaxSplitChildren = 100

// BuildSplitPlan slices totalQuantity into chunkSize pieces: N full
// chunks followed by an optional remainder. The returned order is the
// submission order.
func BuildSplitPlan(totalQuantity, chunkSize int64) ([]int64, error) {
	if totalQuantity <= 0 {
		return nil, &FieldError{Field: "quantity", Reason: "must be positive"}
	}
	if chunkSize <= 0 {
		return nil, &FieldError{Field: "split_size", Reason: "must be positive"}
	}

	n := totalQuantity / chunkSize
	remainder := totalQuantity % chunkSize
	count := n
	if remainder > 0 {
		count++
	}
	if count > MaxSplitChildren {
		return nil, &FieldError{
			Field:  "split_size",
			Reason: fmt.Sprintf("plan needs %d child orders, max is %d", count, MaxSplitChildren),
		}
	}

	plan := make([]int64, 0, count)
	for i := int64(0); i < n; i++ {
		plan = append(plan, chunkSize)
	}
	if remainder > 0 {
		plan = append(plan, remainder)
	}
	return plan, nil
}
