package domain

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrJobTerminal        = errors.New("job already reached a terminal stage")
	ErrProgressRegression = errors.New("progress cannot decrease")
)
