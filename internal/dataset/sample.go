package dataset

import (
	"strings"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
)

// Mode selects which split and which preprocessing path a sample goes through.
type Mode string

const (
	ModeTrain   Mode = "train"
	ModeEval    Mode = "eval"
	ModePredict Mode = "predict"
)

// ParseMode maps the viewer's mode names onto a Mode. "test" and "eval"
// both select the held-out split; anything unknown selects predict.
func ParseMode(s string) Mode {
	switch s {
	case "train":
		return ModeTrain
	case "test", "eval":
		return ModeEval
	default:
		return ModePredict
	}
}

// Sample is one labelled (or unlabelled) image reference.
type Sample struct {
	// ID is the sample's position in the loaded set it came from.
	ID int
	// Image is the path as written in the label file.
	Image string
	// ImagePath is Image resolved against the label file's base directory.
	ImagePath string
	Key       string
	// Value is the raw encoding token, empty in predict mode.
	Value string
	// Label is the decoded class index, -1 when unlabelled.
	Label int
}

// DecodeLabel returns the class index encoded by token: the position of its
// single 'y' marker. Tokens with no marker or several markers are rejected.
func DecodeLabel(token string) (int, error) {
	idx := strings.IndexByte(token, 'y')
	if idx < 0 {
		return -1, apperrors.DataFormatError("label token has no 'y' marker").WithDetail("token", token)
	}
	if strings.Count(token, "y") > 1 {
		return -1, apperrors.DataFormatError("label token has more than one 'y' marker").WithDetail("token", token)
	}
	return idx, nil
}

// OneHot returns a vector of width n that is zero except at label.
func OneHot(label, n int) ([]float32, error) {
	if label < 0 || label >= n {
		return nil, apperrors.ValidationError("label out of range for one-hot encoding")
	}
	v := make([]float32, n)
	v[label] = 1
	return v, nil
}
