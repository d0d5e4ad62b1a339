package schema

import "github.com/ezoic/pricerange/pkg/errors"

// NumClasses is the number of price-range labels.
const NumClasses = 4

var (
	labelNames   = [NumClasses]string{"Low", "Medium", "High", "Very High"}
	labelDisplay = [NumClasses]string{"Low Cost", "Medium Cost", "High Cost", "Very High Cost"}
)

// Labels returns the class labels in ascending order.
func Labels() []int {
	return []int{0, 1, 2, 3}
}

// IsLabel reports whether k is a valid price range.
func IsLabel(k int) bool {
	return k >= 0 && k < NumClasses
}

// LabelName decodes a label to its ordinal name.
func LabelName(k int) (string, error) {
	if !IsLabel(k) {
		return "", errors.NewUnknownLabelError(k)
	}
	return labelNames[k], nil
}

// LabelDisplay returns the card text shown for a label, e.g. "High Cost".
func LabelDisplay(k int) (string, error) {
	if !IsLabel(k) {
		return "", errors.NewUnknownLabelError(k)
	}
	return labelDisplay[k], nil
}
