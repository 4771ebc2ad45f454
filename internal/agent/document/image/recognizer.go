package image

import "context"

// Recognition is the text recognized in one image
type Recognition struct {
	Text string
	// Confidence is the mean confidence of every recognized word or line on a 0-100 scale,
	// including those filtered out of Text
	Confidence float64
	Words      int
}

// Recognizer turns a preprocessed PNG into text
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (*Recognition, error)
}
